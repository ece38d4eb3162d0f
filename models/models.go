package models

// CardAsset is one card's media as submitted by a client. Frames are
// embedded data URLs; the animated and video slots may instead reference
// a remote https URL on an allow-listed host.
type CardAsset struct {
	CardNumber int      `json:"cardNumber"`
	DeckType   string   `json:"deckType"`
	DeckId     string   `json:"deckId"`
	Frames     []string `json:"frames"`
	GifUrl     string   `json:"gifUrl,omitempty"`
	VideoUrl   string   `json:"videoUrl,omitempty"`
	CreatedAt  int64    `json:"createdAt,omitempty"`
}

type UploadRequest struct {
	Cards  []CardAsset `json:"cards"`
	Author string      `json:"author,omitempty"`
	Model  string      `json:"model,omitempty"`
}

// UploadedCard mirrors a CardAsset after every asset has been resolved
// and written to storage. Frames and the gif/video slots hold public URLs.
type UploadedCard struct {
	CardNumber int      `json:"cardNumber"`
	DeckType   string   `json:"deckType"`
	Frames     []string `json:"frames"`
	GifUrl     string   `json:"gifUrl,omitempty"`
	VideoUrl   string   `json:"videoUrl,omitempty"`
}

// GalleryEntry is one published gallery. Entries are immutable after
// registration; there is no update or delete path.
type GalleryEntry struct {
	Locator   string   `json:"locator"`
	Author    string   `json:"author,omitempty"`
	CardCount int      `json:"cardCount"`
	DeckTypes []string `json:"deckTypes"`
	Timestamp int64    `json:"timestamp"`
}
