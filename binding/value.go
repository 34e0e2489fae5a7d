package binding

// An Accessor reads and writes one value, such as a field on an object.
type Accessor interface {
	Get() (any, error)
	Set(v any) error
}

// A Converter turns a source value into a target value.
type Converter interface {
	Convert(v any) (any, error)
}

// An InverseConverter turns a target value back into a source value.
type InverseConverter interface {
	ConvertBack(v any) (any, error)
}

// A Modifier transforms a value in transit, for example to smooth it.
type Modifier interface {
	Modify(v any) (any, error)
}

// AccessorFuncs adapts a getter and a setter to an Accessor. A nil setter
// makes the accessor read-only.
type AccessorFuncs struct {
	GetFunc func() (any, error)
	SetFunc func(v any) error
}

// Get reads the value.
func (a AccessorFuncs) Get() (any, error) {
	return a.GetFunc()
}

// Set writes the value.
func (a AccessorFuncs) Set(v any) error {
	if a.SetFunc == nil {
		return ErrReadOnly
	}

	return a.SetFunc(v)
}

// ConverterFunc adapts a function to a Converter.
type ConverterFunc func(v any) (any, error)

// Convert calls f.
func (f ConverterFunc) Convert(v any) (any, error) {
	return f(v)
}

// InverseConverterFunc adapts a function to an InverseConverter.
type InverseConverterFunc func(v any) (any, error)

// ConvertBack calls f.
func (f InverseConverterFunc) ConvertBack(v any) (any, error) {
	return f(v)
}

// ModifierFunc adapts a function to a Modifier.
type ModifierFunc func(v any) (any, error)

// Modify calls f.
func (f ModifierFunc) Modify(v any) (any, error) {
	return f(v)
}

// Variable is an Accessor over a value it holds.
type Variable struct {
	Value any
}

// Get returns the held value.
func (v *Variable) Get() (any, error) {
	return v.Value, nil
}

// Set replaces the held value.
func (v *Variable) Set(value any) error {
	v.Value = value
	return nil
}
