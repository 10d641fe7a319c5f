package service

import (
	"encoding/base64"

	qrcode "github.com/skip2/go-qrcode"
)

const defaultQRSize = 300

// QRImageService renders envelope payloads as QR images. High error
// correction so printed or re-photographed codes stay scannable.
type QRImageService struct {
	size int
}

func NewQRImageService() *QRImageService {
	return &QRImageService{size: defaultQRSize}
}

// PNG renders the payload as a PNG of the given pixel size.
func (s *QRImageService) PNG(payload []byte, size int) ([]byte, error) {
	if size <= 0 {
		size = s.size
	}
	return qrcode.Encode(string(payload), qrcode.High, size)
}

// DataURL renders the payload as a base64 PNG data URL for embedding in API
// responses.
func (s *QRImageService) DataURL(payload []byte, size int) (string, error) {
	png, err := s.PNG(payload, size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
