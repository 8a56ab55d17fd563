package extract

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/richardlehane/mscfb"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

const (
	fibMagic      = 0xA5EC
	fibFlagsOff   = 0x000A
	fibWhichTable = 0x0200
	fibClxOff     = 0x01A2

	clxPrc  = 0x01
	clxPcdt = 0x02
	pcdSize = 8
)

// docText reads the piece table of a Word 97-2003 binary document and decodes every piece.
func docText(data []byte) (string, error) {
	streams, err := readStreams(data, "WordDocument", "0Table", "1Table")
	if err != nil {
		return "", err
	}
	word := streams["WordDocument"]
	if len(word) < fibClxOff+8 {
		return "", errors.New("WordDocument stream too short")
	}
	if binary.LittleEndian.Uint16(word) != fibMagic {
		return "", errors.New("WordDocument stream has no FIB")
	}

	tableName := "0Table"
	if binary.LittleEndian.Uint16(word[fibFlagsOff:])&fibWhichTable != 0 {
		tableName = "1Table"
	}
	table, ok := streams[tableName]
	if !ok {
		return "", fmt.Errorf("missing %s stream", tableName)
	}

	fcClx := binary.LittleEndian.Uint32(word[fibClxOff:])
	lcbClx := binary.LittleEndian.Uint32(word[fibClxOff+4:])
	if uint64(fcClx)+uint64(lcbClx) > uint64(len(table)) {
		return "", errors.New("piece table out of range")
	}
	pieces, err := parseClx(table[fcClx : fcClx+lcbClx])
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, p := range pieces {
		text, err := p.decode(word)
		if err != nil {
			return "", err
		}
		sb.WriteString(text)
	}
	return cleanDocText(sb.String()), nil
}

func readStreams(data []byte, names ...string) (map[string][]byte, error) {
	doc, err := mscfb.New(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open compound file: %w", err)
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	streams := make(map[string][]byte)
	for entry, err := doc.Next(); err != io.EOF; entry, err = doc.Next() {
		if err != nil {
			return nil, fmt.Errorf("read compound file: %w", err)
		}
		if !want[entry.Name] {
			continue
		}
		buf, err := io.ReadAll(entry)
		if err != nil {
			return nil, fmt.Errorf("read %s stream: %w", entry.Name, err)
		}
		streams[entry.Name] = buf
	}
	if _, ok := streams["WordDocument"]; !ok {
		return nil, errors.New("missing WordDocument stream")
	}
	return streams, nil
}

type piece struct {
	offset     uint32
	chars      uint32
	compressed bool
}

func (p piece) decode(word []byte) (string, error) {
	size := p.chars * 2
	if p.compressed {
		size = p.chars
	}
	if uint64(p.offset)+uint64(size) > uint64(len(word)) {
		return "", errors.New("text piece out of range")
	}
	raw := word[p.offset : p.offset+size]
	var (
		out []byte
		err error
	)
	if p.compressed {
		out, err = charmap.Windows1252.NewDecoder().Bytes(raw)
	} else {
		out, err = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(raw)
	}
	if err != nil {
		return "", fmt.Errorf("decode text piece: %w", err)
	}
	return string(out), nil
}

// parseClx skips the Prc records and parses the PlcPcd of the Pcdt.
func parseClx(clx []byte) ([]piece, error) {
	i := 0
	for i < len(clx) && clx[i] == clxPrc {
		if i+3 > len(clx) {
			return nil, errors.New("truncated Prc")
		}
		i += 3 + int(binary.LittleEndian.Uint16(clx[i+1:]))
	}
	if i+5 > len(clx) || clx[i] != clxPcdt {
		return nil, errors.New("missing Pcdt")
	}
	lcb := int(binary.LittleEndian.Uint32(clx[i+1:]))
	plc := clx[i+5:]
	if lcb > len(plc) || lcb < 4 || (lcb-4)%(4+pcdSize) != 0 {
		return nil, errors.New("malformed PlcPcd")
	}
	n := (lcb - 4) / (4 + pcdSize)
	cps := plc[:(n+1)*4]
	pcds := plc[(n+1)*4 : lcb]

	pieces := make([]piece, 0, n)
	for k := 0; k < n; k++ {
		start := binary.LittleEndian.Uint32(cps[k*4:])
		end := binary.LittleEndian.Uint32(cps[(k+1)*4:])
		if end < start {
			return nil, errors.New("character positions out of order")
		}
		fc := binary.LittleEndian.Uint32(pcds[k*pcdSize+2:])
		p := piece{chars: end - start}
		if fc&0x40000000 != 0 {
			p.compressed = true
			p.offset = (fc &^ 0x40000000) / 2
		} else {
			p.offset = fc
		}
		pieces = append(pieces, p)
	}
	return pieces, nil
}

// cleanDocText maps Word control characters to plain text and drops field instructions,
// keeping field results.
func cleanDocText(s string) string {
	var (
		sb     strings.Builder
		fields []bool // true while inside a field instruction
	)
	hidden := func() bool {
		for _, instr := range fields {
			if instr {
				return true
			}
		}
		return false
	}
	for _, r := range s {
		switch r {
		case 0x13:
			fields = append(fields, true)
			continue
		case 0x14:
			if len(fields) > 0 {
				fields[len(fields)-1] = false
			}
			continue
		case 0x15:
			if len(fields) > 0 {
				fields = fields[:len(fields)-1]
			}
			continue
		}
		if hidden() {
			continue
		}
		switch r {
		case '\r', 0x0b, 0x0c:
			sb.WriteByte('\n')
		case 0x07:
			sb.WriteByte('\t')
		case '\t', '\n':
			sb.WriteRune(r)
		default:
			if r >= 0x20 {
				sb.WriteRune(r)
			}
		}
	}
	return sb.String()
}
