package domain

import "bytes"

// Image is the raw representation of a picture: its bytes plus a media type
// such as "image/png".
type Image struct {
	Data     []byte
	MIMEType string
}

// IsZero reports whether the image carries no content.
func (i Image) IsZero() bool {
	return len(i.Data) == 0
}

// Equal reports whether both images have the same media type and bytes.
func (i Image) Equal(other Image) bool {
	return i.MIMEType == other.MIMEType && bytes.Equal(i.Data, other.Data)
}

// Clone returns a deep copy so callers cannot mutate session-owned bytes.
func (i Image) Clone() Image {
	data := make([]byte, len(i.Data))
	copy(data, i.Data)
	return Image{Data: data, MIMEType: i.MIMEType}
}
