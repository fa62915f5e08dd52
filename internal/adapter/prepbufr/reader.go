package prepbufr

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
)

// ErrCorrupt is returned when a file does not follow the message layout.
var ErrCorrupt = errors.New("corrupt prepbufr message")

// Message is one decoded message.
type Message struct {
	Type    string
	Date    int
	Subsets []Subset
}

// ReadFile decodes every message in the file at path.
func ReadFile(path string) ([]Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	msgs, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return msgs, nil
}

// Decode reads messages until EOF.
func Decode(in io.Reader) ([]Message, error) {
	br := bufio.NewReader(in)
	var msgs []Message

	for n := 0; ; n++ {
		var head [len(magic)]byte
		if _, err := io.ReadFull(br, head[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return msgs, nil
			}
			return nil, fmt.Errorf("message %d: %w: %w", n, ErrCorrupt, err)
		}
		if string(head[:]) != magic {
			return nil, fmt.Errorf("message %d: %w: bad magic %q", n, ErrCorrupt, head[:])
		}

		var size uint32
		if err := binary.Read(br, binary.BigEndian, &size); err != nil {
			return nil, fmt.Errorf("message %d: %w: %w", n, ErrCorrupt, err)
		}
		body := make([]byte, size)
		if _, err := io.ReadFull(br, body); err != nil {
			return nil, fmt.Errorf("message %d: %w: truncated body: %w", n, ErrCorrupt, err)
		}

		var tail [len(endMarker)]byte
		if _, err := io.ReadFull(br, tail[:]); err != nil || string(tail[:]) != endMarker {
			return nil, fmt.Errorf("message %d: %w: missing end marker", n, ErrCorrupt)
		}

		m, err := decodeBody(body)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", n, err)
		}
		msgs = append(msgs, m)
	}
}

func decodeBody(body []byte) (Message, error) {
	r := bytes.NewReader(body)

	var typ [typeWidth]byte
	var date int32
	var count uint16
	if _, err := io.ReadFull(r, typ[:]); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if err := binary.Read(r, binary.BigEndian, &date); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	m := Message{
		Type:    strings.TrimRight(string(typ[:]), " "),
		Date:    int(date),
		Subsets: make([]Subset, 0, count),
	}
	for i := 0; i < int(count); i++ {
		s, err := decodeSubset(r)
		if err != nil {
			return Message{}, fmt.Errorf("subset %d: %w", i, err)
		}
		m.Subsets = append(m.Subsets, s)
	}
	if r.Len() != 0 {
		return Message{}, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, r.Len())
	}
	return m, nil
}

func decodeSubset(r *bytes.Reader) (Subset, error) {
	var s Subset
	targets := [numArrays]*[]float64{&s.Header, &s.Obs, &s.Drift, &s.Errors, &s.Quality}

	for a, dst := range targets {
		n, err := r.ReadByte()
		if err != nil {
			return Subset{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		arr := make([]float64, n)
		for i := range arr {
			var bits uint64
			if err := binary.Read(r, binary.BigEndian, &bits); err != nil {
				return Subset{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
			}
			if a == arrHDR && i == 0 {
				s.SID = sidString(bits)
				arr[i] = Missing
				continue
			}
			arr[i] = math.Float64frombits(bits)
		}
		*dst = arr
	}
	return s, nil
}
