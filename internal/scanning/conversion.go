package scanning

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// barcodeScanPrompt is the shared prompt used by all vision providers for reading barcodes
const barcodeScanPrompt = `You are looking at a single frame from a handheld camera pointed at an arcade machine, a prize or a spare part label. Find the barcode or QR code in the image, if any, and read it.

Return ONLY valid JSON in this exact format:
{
  "text": "the decoded payload exactly as encoded",
  "format": "QR_CODE | CODE_128 | CODE_39 | EAN_13 | EAN_8 | UPC_A | DATA_MATRIX | OTHER",
  "confidence": 0.00
}

Important:
- "confidence" is a number between 0 and 1 describing how certain you are of every character
- If no barcode is visible or it is too blurry to read, return {"text": null, "format": "", "confidence": 0}
- Never guess missing characters
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// scanPrompt returns the prompt with the session's format hint appended
func scanPrompt(state *DecoderState) string {
	if format := state.LastFormat(); format != "" {
		return barcodeScanPrompt + fmt.Sprintf("\n- Earlier frames in this session contained a %s symbol", format)
	}
	return barcodeScanPrompt
}

// frameToPNG encodes a frame for upload to a vision provider
func frameToPNG(frame *image.RGBA) ([]byte, error) {
	if frame == nil {
		return nil, fmt.Errorf("frame is nil")
	}
	b := frame.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("frame has no pixels")
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, frame); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// ToRGBA copies any image into an RGBA buffer anchored at the origin
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

// pdfToImage renders the first page of a PDF
func pdfToImage(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	// Labels are printed one per page
	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// LoadFrame decodes a still image (JPEG, PNG, GIF, HEIC/HEIF) or the first page of a PDF into a frame
func LoadFrame(data []byte, contentType string) (*image.RGBA, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))

	var img image.Image
	var err error
	switch {
	case mimeType == "application/pdf":
		img, err = pdfToImage(data)
		if err != nil {
			return nil, fmt.Errorf("converting PDF to image: %w", err)
		}
	case isHEICFormat(data) || isHEICMimeType(mimeType):
		// Go's standard image package doesn't support HEIC
		img, err = heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	default:
		img, _, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			if strings.Contains(err.Error(), "unknown format") {
				return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, HEIC, HEIF, PDF. Error: %w", err)
			}
			return nil, fmt.Errorf("decoding image: %w", err)
		}
	}

	return ToRGBA(img), nil
}

// isHEICFormat checks if the image data is in HEIC/HEIF format
func isHEICFormat(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	// ftyp box at offset 4 with a HEIC-related brand
	if string(data[4:8]) == "ftyp" {
		brand := string(data[8:12])
		if brand == "heic" || brand == "heif" || brand == "mif1" || brand == "msf1" {
			return true
		}
	}
	return false
}

// isHEICMimeType checks if the MIME type indicates HEIC/HEIF format
func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
