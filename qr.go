/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// mobile-friendly size
const qrSize = 320

// serveQR renders the current round's Spotify link as a PNG, so guests can
// save the song once its submitter has been revealed.
func serveQR(cfg *Config, hub *Hub, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		securityHeaders(cfg, w)

		trackID, ok := hub.sharedTrack()
		if !ok {
			http.Error(w, "no revealed song to share", http.StatusNotFound)
			return
		}

		png, err := qrcode.Encode(TrackURL(trackID), qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Length", strconv.Itoa(len(png)))

		_, err = w.Write(png)
		if err != nil {
			errs <- err

			return
		}
	}
}
