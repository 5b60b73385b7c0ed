package bingo

import (
	"errors"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultQRSize is the default PNG edge length in pixels.
const DefaultQRSize = 320

// JoinQR renders url as a PNG QR code. Sizes outside 64..1024 use DefaultQRSize.
func JoinQR(url string, size int) ([]byte, error) {
	if url == "" {
		return nil, errors.New("bingo: empty join url")
	}
	if size < 64 || size > 1024 {
		size = DefaultQRSize
	}
	return qrcode.Encode(url, qrcode.Medium, size)
}
