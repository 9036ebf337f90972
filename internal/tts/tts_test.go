package tts

import (
	"context"
	"encoding/binary"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAlertToneIsValidPCM(t *testing.T) {
	tone := AlertTone()
	require.NotEmpty(t, tone)
	require.Zero(t, len(tone)%2, "odd byte count is not 16-bit PCM")

	// Peak must stay well inside int16 range after envelope and gain.
	for i := 0; i+1 < len(tone); i += 2 {
		v := int16(binary.LittleEndian.Uint16(tone[i:]))
		require.LessOrEqual(t, int(v), 16000)
		require.GreaterOrEqual(t, int(v), -16000)
	}
}

func TestStreamClientStreamsChunks(t *testing.T) {
	const body = "fake-pcm-bytes-from-synthesis"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasPrefix(r.URL.Path, "/v1/text-to-speech/voice-1/stream"))
		require.Equal(t, "test-key", r.Header.Get("xi-api-key"))
		require.Contains(t, r.URL.RawQuery, "pcm_24000")
		_, _ = io.WriteString(w, body)
	}))
	defer srv.Close()

	c := NewStreamClient(srv.URL, "test-key", "voice-1")
	pcmCh, errCh := c.StreamPCM(context.Background(), "hello")

	var got []byte
	for chunk := range pcmCh {
		got = append(got, chunk...)
	}
	require.NoError(t, <-errCh)
	require.Equal(t, body, string(got))
}

func TestStreamClientRequiresCredentials(t *testing.T) {
	c := NewStreamClient("https://example.invalid", "", "")
	pcmCh, errCh := c.StreamPCM(context.Background(), "hello")

	for range pcmCh {
	}
	require.Error(t, <-errCh)
}
