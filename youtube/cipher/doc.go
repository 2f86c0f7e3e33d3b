/*
Package cipher turns the scrambled "s" signature and "n" throttling values of
YouTube stream URLs into playable ones, using the site's player.js.

A Cipher downloads player.js once per URL and keeps it for a TTL (10 minutes
by default). Player binds it to one player.js URL:

	c := cipher.New(httpClient)
	jsURL, err := c.FetchPlayerJS(ctx, videoID)
	if err != nil {
		return err
	}
	p := c.Player(jsURL)
	sig, err := p.Decipher(ctx, s)
	n, err := p.DecipherN(ctx, nParam)

Signatures are first deciphered by parsing the reverse, splice and swap
operations out of player.js with regular expressions. When the sequence
cannot be recognized the whole script is run in otto and its split/join
entry point is called. The n-function is extracted by brace matching and
evaluated with goja; when it cannot be found DecipherN returns its input.

Errors are *Error values carrying a code (PLAYER_JS_NOT_FOUND,
SIGNATURE_DECIPHER_FAILED, JS_EXECUTION_FAILED, ...). All of them match
errs.ErrCipherFailed with errors.Is.
*/
package cipher
