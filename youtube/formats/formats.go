package formats

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ytget/audiofetch/errs"
	"github.com/ytget/audiofetch/internal/logger"
	"github.com/ytget/audiofetch/internal/mimeext"
	"github.com/ytget/audiofetch/types"
	"github.com/ytget/audiofetch/youtube/innertube"
)

// Decoder turns scrambled signature and throttling values into playable ones.
type Decoder interface {
	Decipher(ctx context.Context, sig string) (string, error)
	DecipherN(ctx context.Context, n string) (string, error)
}

// ParseStreams converts the progressive and adaptive formats of a player
// response into stream descriptors, preserving the reported order.
func ParseStreams(data *innertube.PlayerResponse) []types.Stream {
	if data == nil {
		return nil
	}
	log := logger.WithComponent(logger.ComponentFormat)

	raw := data.StreamingData.AllFormats()
	streams := make([]types.Stream, 0, len(raw))
	for _, f := range raw {
		s := types.Stream{
			ID:             strconv.Itoa(f.Itag),
			Itag:           f.Itag,
			MimeType:       f.MimeType,
			Ext:            mimeext.ExtFromMime(f.MimeType),
			AudioOnly:      mimeext.IsAudio(f.MimeType),
			AverageBitrate: kbps(f),
			Bitrate:        f.Bitrate,
			Size:           contentLength(f.ContentLength),
			URL:            f.URL,
		}
		if !hasDirectURL(s) {
			s.SignatureCipher = signatureCipher(f)
		}
		streams = append(streams, s)
	}

	log.Debug("Parsed streams", map[string]interface{}{
		"total": len(streams),
		"audio": countAudio(streams),
	})
	return streams
}

// ResolveStreamURL builds the final downloadable URL for s. A signatureCipher
// is deciphered with dec; the n parameter is decoded when possible and left
// untouched otherwise.
func ResolveStreamURL(ctx context.Context, dec Decoder, s types.Stream) (string, error) {
	log := logger.WithComponent(logger.ComponentFormat)

	var (
		u   *url.URL
		err error
	)
	switch {
	case hasDirectURL(s):
		u, err = url.Parse(strings.TrimSpace(s.URL))
		if err != nil {
			return "", fmt.Errorf("parse direct url failed: %w", err)
		}
	case strings.TrimSpace(s.SignatureCipher) != "":
		u, err = decipherURL(ctx, dec, s.SignatureCipher)
		if err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("%w: no url or signatureCipher for itag %d", errs.ErrCipherFailed, s.Itag)
	}

	q := u.Query()
	if nval := q.Get("n"); nval != "" && dec != nil {
		if nout, nerr := dec.DecipherN(ctx, nval); nerr == nil && nout != "" {
			q.Set("n", nout)
		} else if nerr != nil {
			log.Debug("n-parameter left as is", map[string]interface{}{"itag": s.Itag, "error": nerr.Error()})
		}
	}
	if q.Get("ratebypass") == "" {
		q.Set("ratebypass", "yes")
	}
	// Encourage redirect behavior to non-alt hosts
	if q.Get("alr") == "" {
		q.Set("alr", "yes")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func decipherURL(ctx context.Context, dec Decoder, signatureCipher string) (*url.URL, error) {
	parsed, err := url.ParseQuery(signatureCipher)
	if err != nil {
		return nil, fmt.Errorf("%w: parse signatureCipher: %v", errs.ErrCipherFailed, err)
	}
	sig := parsed.Get("s")
	sp := parsed.Get("sp")
	if sp == "" {
		sp = "signature"
	}
	cipherURL := parsed.Get("url")
	if cipherURL == "" || sig == "" {
		return nil, fmt.Errorf("%w: signatureCipher missing signature or url", errs.ErrCipherFailed)
	}
	if dec == nil {
		return nil, fmt.Errorf("%w: no decoder for signatureCipher", errs.ErrCipherFailed)
	}
	decoded, err := dec.Decipher(ctx, sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrCipherFailed, err)
	}
	u, err := url.Parse(cipherURL)
	if err != nil {
		return nil, fmt.Errorf("parse cipher url failed: %w", err)
	}
	q := u.Query()
	q.Set(sp, decoded)
	u.RawQuery = q.Encode()
	return u, nil
}
