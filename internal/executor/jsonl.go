package executor

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// maxLineSize bounds a single JSONL record.
const maxLineSize = 16 << 20

func marshalString(s string) ([]byte, error) {
	return json.Marshal(s)
}

// eachLine calls fn for every non-blank line of content with its 1-based
// line number.
func eachLine(content []byte, fn func(n int, line []byte) error) error {
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	n := 0
	for sc.Scan() {
		n++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(n, line); err != nil {
			return err
		}
	}
	return sc.Err()
}

// remap renames the top level keys of record according to mapping. Keys
// without a mapping entry are dropped; an empty mapping keeps the record.
func remap(record []byte, mapping map[string]string) ([]byte, error) {
	parsed := gjson.ParseBytes(record)
	if !parsed.IsObject() {
		return nil, fmt.Errorf("record is not a JSON object")
	}
	if len(mapping) == 0 {
		return pretty.Ugly(record), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	written := 0
	parsed.ForEach(func(key, value gjson.Result) bool {
		target, ok := mapping[key.String()]
		if !ok || target == "" {
			return true
		}
		if written > 0 {
			buf.WriteByte(',')
		}
		k, _ := marshalString(target)
		buf.Write(k)
		buf.WriteByte(':')
		buf.WriteString(value.Raw)
		written++
		return true
	})
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
