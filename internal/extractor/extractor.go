package extractor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/condition"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
)

var ErrInvalidJSON = errors.New("source is not valid JSON")

// Result — плоская запись переменных и исходный разобранный документ.
type Result struct {
	Values  map[string]any
	Missing []string
	Doc     any
}

// Extract строго разбирает sourceText и достаёт переменные по точечным путям.
// Отсутствующий путь даёт nil только для своей переменной.
func Extract(variables []domain.ExtractorVariable, sourceText string) (*Result, error) {
	doc, err := parse(sourceText)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Values: make(map[string]any, len(variables)),
		Doc:    doc,
	}
	for _, v := range variables {
		path := strings.TrimSpace(v.Path)
		if path == "" {
			path = v.Name
		}
		val, ok := condition.Lookup(doc, path)
		if !ok {
			res.Values[v.Name] = nil
			res.Missing = append(res.Missing, v.Name)
			continue
		}
		res.Values[v.Name] = val
	}
	return res, nil
}

func parse(text string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(strings.TrimSpace(text))))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	// Хвост после документа — тоже ошибка разбора
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after document", ErrInvalidJSON)
	}
	return doc, nil
}
