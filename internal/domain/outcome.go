package domain

import (
	"fmt"
	"time"
)

// Color es el color de la casilla que reporta el detector.
type Color string

const (
	ColorRed   Color = "red"
	ColorBlack Color = "black"
	ColorGreen Color = "green"
)

// MaxPocket es la casilla más alta de una ruleta de un solo cero.
const MaxPocket = 36

var redPockets = map[int]bool{
	1: true, 3: true, 5: true, 7: true, 9: true, 12: true,
	14: true, 16: true, 18: true, 19: true, 21: true, 23: true,
	25: true, 27: true, 30: true, 32: true, 34: true, 36: true,
}

// ColorOf devuelve el color de una casilla en una ruleta estándar de un solo cero.
func ColorOf(value int) Color {
	switch {
	case value == 0:
		return ColorGreen
	case redPockets[value]:
		return ColorRed
	default:
		return ColorBlack
	}
}

// ParseColor acepta las etiquetas de color del detector.
func ParseColor(s string) (Color, error) {
	switch Color(s) {
	case ColorRed, ColorBlack, ColorGreen:
		return Color(s), nil
	}
	return "", fmt.Errorf("unknown color %q", s)
}

// Outcome es una tirada observada. Es inmutable una vez registrada.
type Outcome struct {
	SpinNumber int64     `json:"spin_number"`
	Value      int       `json:"value"`
	Color      Color     `json:"color"`
	ObservedAt time.Time `json:"observed_at"`
}

// NewOutcome construye un resultado tomando el color de la ruleta.
func NewOutcome(spin int64, value int, at time.Time) Outcome {
	return Outcome{SpinNumber: spin, Value: value, Color: ColorOf(value), ObservedAt: at}
}

// Validate comprueba el rango del valor y que el cero sea verde.
func (o Outcome) Validate() error {
	if o.Value < 0 || o.Value > MaxPocket {
		return fmt.Errorf("outcome %d: value %d out of range 0..%d", o.SpinNumber, o.Value, MaxPocket)
	}
	if (o.Value == 0) != (o.Color == ColorGreen) {
		return fmt.Errorf("outcome %d: value %d cannot be %s", o.SpinNumber, o.Value, o.Color)
	}
	if o.Color != ColorRed && o.Color != ColorBlack && o.Color != ColorGreen {
		return fmt.Errorf("outcome %d: unknown color %q", o.SpinNumber, o.Color)
	}
	return nil
}

// IsZero indica si la bola cayó en la casilla verde.
func (o Outcome) IsZero() bool { return o.Value == 0 }

// Class es la clasificación de un resultado dentro de un mercado.
type Class string

const (
	ClassEven  Class = "even"
	ClassOdd   Class = "odd"
	ClassRed   Class = "red"
	ClassBlack Class = "black"
	ClassZero  Class = "zero"
)

// Market es el mercado a la par que una estrategia observa y apuesta.
type Market string

const (
	MarketParity Market = "parity"
	MarketColor  Market = "color"
)

// Classify mapea un resultado a las clases del mercado. El cero es su propia
// clase en todos los mercados.
func (m Market) Classify(o Outcome) Class {
	if o.IsZero() {
		return ClassZero
	}
	if m == MarketColor {
		if o.Color == ColorRed {
			return ClassRed
		}
		return ClassBlack
	}
	if o.Value%2 == 0 {
		return ClassEven
	}
	return ClassOdd
}

// Opposite devuelve la otra clase del mercado, o ClassZero para el cero.
func (m Market) Opposite(c Class) Class {
	switch c {
	case ClassEven:
		return ClassOdd
	case ClassOdd:
		return ClassEven
	case ClassRed:
		return ClassBlack
	case ClassBlack:
		return ClassRed
	}
	return ClassZero
}

// Valid indica si m es un mercado conocido.
func (m Market) Valid() bool {
	return m == MarketParity || m == MarketColor
}
