package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Bindings — конкретные значения входов, накопленные к текущему шагу.
// Поздняя запись с тем же id затеняет раннюю.
type Bindings struct {
	byID   map[string]any
	byType map[string]any
}

func NewBindings() *Bindings {
	return &Bindings{
		byID:   make(map[string]any),
		byType: make(map[string]any),
	}
}

// BindingsFromMap связывает статические входы запуска (ключ = id и тип).
func BindingsFromMap(values map[string]any) *Bindings {
	b := NewBindings()
	for k, v := range values {
		b.byID[k] = v
		b.byType[k] = v
	}
	return b
}

// Bind привязывает значение к элементу по id и по типу.
func (b *Bindings) Bind(el InputElement, v any) {
	b.byID[el.ID] = v
	if el.Type != "" {
		b.byType[el.Type] = v
	}
}

func (b *Bindings) Get(id string) (any, bool) {
	v, ok := b.byID[id]
	return v, ok
}

// Lookup ищет по id, затем по типу.
func (b *Bindings) Lookup(id, typ string) (any, bool) {
	if id != "" {
		if v, ok := b.byID[id]; ok {
			return v, true
		}
	}
	if typ != "" {
		if v, ok := b.byType[typ]; ok {
			return v, true
		}
	}
	return nil, false
}

// Snapshot — копия значений по id для журнала шагов.
func (b *Bindings) Snapshot() map[string]any {
	out := make(map[string]any, len(b.byID))
	for k, v := range b.byID {
		out[k] = v
	}
	return out
}

// Select возвращает значения только для перечисленных элементов.
func (b *Bindings) Select(elements []InputElement) map[string]any {
	out := make(map[string]any, len(elements))
	for _, el := range elements {
		if v, ok := b.Lookup(el.ID, el.Type); ok {
			out[el.ID] = v
		}
	}
	return out
}

// Stringify приводит значение входа к тексту для шаблонов и сравнений.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int, int32, int64, uint, uint32, uint64:
		return fmt.Sprint(t)
	case fmt.Stringer:
		return t.String()
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}
