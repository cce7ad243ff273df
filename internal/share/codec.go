// Package share encodes sessions into self-contained share links and back.
//
// The format is the one the web client has always produced: field names are
// shortened by a fixed table, coordinates are rounded to two decimals and the
// JSON is LZ-String compressed into a URL-safe string.
package share

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/okian/pepai/internal/domain/drill"
	"github.com/okian/pepai/internal/domain/session"
)

// shortNames is the key table of the link format. It must never change:
// links already in the wild depend on it.
var shortNames = map[string]string{
	"id":             "i",
	"title":          "t",
	"date":           "d",
	"team":           "tm",
	"drills":         "dr",
	"name":           "n",
	"category":       "c",
	"duration":       "dur",
	"players":        "p",
	"setup":          "s",
	"instructions":   "ins",
	"coachingPoints": "cp",
	"positions":      "pos",
	"arrows":         "arr",
	"x":              "x",
	"y":              "y",
	"label":          "l",
	"type":           "ty",
	"color":          "co",
	"start":          "st",
	"end":            "en",
	"layout":         "ly",
	"notes":          "nt",
}

var longNames = func() map[string]string {
	m := make(map[string]string, len(shortNames))
	for long, short := range shortNames {
		m[short] = long
	}
	return m
}()

// Compress encodes s as a share-link payload.
func Compress(s session.Session) (string, error) {
	s = roundCoords(s)
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("share: marshal session: %w", err)
	}
	short, err := renameKeys(data, shortNames)
	if err != nil {
		return "", fmt.Errorf("share: shorten keys: %w", err)
	}
	return compressURI(string(short)), nil
}

// Decompress decodes a share-link payload. Any failure is ErrInvalidLink.
func Decompress(payload string) (session.Session, error) {
	if payload == "" {
		return session.Session{}, ErrEmptyLink
	}
	text, ok := decompressURI(payload)
	if !ok || text == "" {
		return session.Session{}, ErrInvalidLink
	}
	long, err := renameKeys([]byte(text), longNames)
	if err != nil {
		return session.Session{}, fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}
	s, err := session.Decode(long)
	if err != nil {
		return session.Session{}, fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}
	return s, nil
}

// Round2 rounds half-up to two decimals.
func Round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}

func roundCoords(s session.Session) session.Session {
	out := s
	out.Drills = make([]drill.Drill, len(s.Drills))
	for i, d := range s.Drills {
		d = d.Clone()
		for j := range d.Positions {
			d.Positions[j].X = Round2(d.Positions[j].X)
			d.Positions[j].Y = Round2(d.Positions[j].Y)
		}
		for j := range d.Arrows {
			a := &d.Arrows[j]
			a.Start.X, a.Start.Y = Round2(a.Start.X), Round2(a.Start.Y)
			a.End.X, a.End.Y = Round2(a.End.X), Round2(a.End.Y)
		}
		out.Drills[i] = d
	}
	return out
}

// renameKeys rewrites every object key found in names, at any depth, and
// leaves the document otherwise untouched. Key order is preserved.
func renameKeys(data []byte, names map[string]string) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var buf bytes.Buffer
	if err := copyValue(dec, &buf, names); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after document")
	}
	return buf.Bytes(), nil
}

func copyValue(dec *json.Decoder, buf *bytes.Buffer, names map[string]string) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return writeScalar(buf, tok)
	}

	switch delim {
	case '{':
		buf.WriteByte('{')
		for first := true; dec.More(); first = false {
			if !first {
				buf.WriteByte(',')
			}
			kt, err := dec.Token()
			if err != nil {
				return err
			}
			k, _ := kt.(string)
			if n, ok := names[k]; ok {
				k = n
			}
			if err := writeScalar(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := copyValue(dec, buf, names); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case '[':
		buf.WriteByte('[')
		for first := true; dec.More(); first = false {
			if !first {
				buf.WriteByte(',')
			}
			if err := copyValue(dec, buf, names); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		return fmt.Errorf("unexpected %v", delim)
	}
	// Closing delimiter.
	_, err = dec.Token()
	return err
}

func writeScalar(buf *bytes.Buffer, v any) error {
	if n, ok := v.(json.Number); ok {
		buf.WriteString(n.String())
		return nil
	}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	// Encode appends a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}
