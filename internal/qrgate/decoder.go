package qrgate

import "image"

// StaticDecoder reports a fixed token for every frame. The CLI simulator
// and tests use it in place of a real image decoder; on device the decode
// happens in the platform's QR engine.
type StaticDecoder struct {
	Token string
}

func (d StaticDecoder) Decode(img image.Image) (string, bool) {
	if d.Token == "" || img == nil {
		return "", false
	}

	return d.Token, true
}

// FuncDecoder adapts a function to the Decoder interface.
type FuncDecoder func(img image.Image) (string, bool)

func (f FuncDecoder) Decode(img image.Image) (string, bool) {
	return f(img)
}
