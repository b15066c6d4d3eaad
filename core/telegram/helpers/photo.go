package helpers

import (
	"errors"
	"io"

	tele "gopkg.in/telebot.v4"
)

// ErrNoPhoto reports a message without a photo attachment.
var ErrNoPhoto = errors.New("message has no photo")

// DownloadPhoto fetches the photo attached to the triggering message via the
// bot API and returns its bytes with a content type. Telegram re-encodes all
// photo uploads to JPEG.
func DownloadPhoto(c tele.Context) ([]byte, string, error) {
	msg := c.Message()
	if msg == nil || msg.Photo == nil {
		return nil, "", ErrNoPhoto
	}
	rc, err := c.Bot().File(&msg.Photo.File)
	if err != nil {
		return nil, "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, "", err
	}
	return data, "image/jpeg", nil
}
