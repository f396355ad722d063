package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Edge Text-to-Speech Service
// Speaks text through the Microsoft Edge "read aloud" websocket endpoint.
// No API key is required. One connection carries a speech.config message
// followed by one SSML request per text piece; audio arrives as binary frames
// until the service sends turn.end.
// ---------------------------------------------------------------------------

const (
	edgeTTSEndpoint      = "wss://speech.platform.bing.com/consumer/speech/synthesize/readaloud/edge/v1"
	edgeTrustedToken     = "6A5AA1D4EAFF4E9FB37E23D68491D6F4"
	edgeGECVersion       = "1-130.0.2849.68"
	edgeOrigin           = "chrome-extension://jdiccldimpdaibmpdkjnbmckianbfold"
	edgeUserAgent        = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36 Edg/130.0.0.0"
	edgeOutputFormat     = "audio-24khz-48kbitrate-mono-mp3"
	edgeTimestampLayout  = "Mon Jan 02 2006 15:04:05 GMT+0000 (Coordinated Universal Time)"
	edgeMaxRequestBytes  = 4096 // escaped text per SSML request
	edgeDefaultTimeout   = 2 * time.Minute
	windowsEpochOffset   = 11644473600 // seconds between 1601-01-01 and 1970-01-01
	secMSGECRoundSeconds = 300
)

// EdgeTTSService handles text-to-speech via the Edge read-aloud service.
type EdgeTTSService struct {
	endpoint string
	dialer   *websocket.Dialer
	timeout  time.Duration
	now      func() time.Time
}

// Ensure EdgeTTSService implements TTSService at compile time.
var _ TTSService = (*EdgeTTSService)(nil)

// NewEdgeTTSService creates an Edge TTS client. An empty endpoint uses the
// public service.
func NewEdgeTTSService(endpoint string) *EdgeTTSService {
	if endpoint == "" {
		endpoint = edgeTTSEndpoint
	}
	return &EdgeTTSService{
		endpoint: endpoint,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
			Proxy:            http.ProxyFromEnvironment,
		},
		timeout: edgeDefaultTimeout,
		now:     time.Now,
	}
}

// GenerateSpeech converts text to MP3 audio spoken with voice.
func (s *EdgeTTSService) GenerateSpeech(ctx context.Context, text string, voice Voice) (*TTSResponse, error) {
	text = cleanSpeechText(text)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("edge tts: no text to speak")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	wsURL, err := s.connectURL()
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Origin", edgeOrigin)
	header.Set("User-Agent", edgeUserAgent)
	header.Set("Pragma", "no-cache")
	header.Set("Cache-Control", "no-cache")
	header.Set("Accept-Language", "en-US,en;q=0.9")

	conn, resp, err := s.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("edge tts handshake failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("edge tts dial failed: %w", err)
	}
	defer conn.Close()

	// Unblock pending reads when the context ends.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
		conn.SetWriteDeadline(deadline)
	}

	if err := conn.WriteMessage(websocket.TextMessage, s.speechConfigMessage()); err != nil {
		return nil, fmt.Errorf("edge tts: failed to send speech config: %w", err)
	}

	pieces := splitEdgeText(html.EscapeString(text), edgeMaxRequestBytes)

	var audio bytes.Buffer
	for i, piece := range pieces {
		if err := conn.WriteMessage(websocket.TextMessage, s.ssmlMessage(piece, voice)); err != nil {
			return nil, fmt.Errorf("edge tts: failed to send ssml for piece %d: %w", i, err)
		}

		n, err := readEdgeAudio(conn, &audio)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("edge tts piece %d: %w", i, ctx.Err())
			}
			return nil, fmt.Errorf("edge tts piece %d: %w", i, err)
		}
		if n == 0 {
			return nil, fmt.Errorf("edge tts piece %d: no audio received", i)
		}
	}

	speed := voice.SpeedMultiplier()

	log.Debug().Str("component", "edge_tts").Str("voice", voice.VoiceName).Int("pieces", len(pieces)).
		Int("bytes", audio.Len()).Msg("speech generated")

	return &TTSResponse{
		AudioData:  audio.Bytes(),
		DurationMs: estimateAudioDuration(text, speed),
		Format:     "mp3",
	}, nil
}

// readEdgeAudio consumes frames for one request, appending audio to out, and
// returns the number of audio bytes received.
func readEdgeAudio(conn *websocket.Conn, out *bytes.Buffer) (int, error) {
	received := 0
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return received, fmt.Errorf("read failed: %w", err)
		}

		switch msgType {
		case websocket.TextMessage:
			headers, _ := splitEdgeTextMessage(data)
			if headers["Path"] == "turn.end" {
				return received, nil
			}
		case websocket.BinaryMessage:
			headers, payload, err := splitEdgeBinaryMessage(data)
			if err != nil {
				return received, err
			}
			if headers["Path"] != "audio" {
				continue
			}
			out.Write(payload)
			received += len(payload)
		}
	}
}

func (s *EdgeTTSService) connectURL() (string, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid edge tts endpoint: %w", err)
	}

	q := u.Query()
	q.Set("TrustedClientToken", edgeTrustedToken)
	q.Set("Sec-MS-GEC", secMSGEC(s.now()))
	q.Set("Sec-MS-GEC-Version", edgeGECVersion)
	q.Set("ConnectionId", strings.ReplaceAll(uuid.NewString(), "-", ""))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// secMSGEC derives the access token the service expects: the current time in
// Windows file-time ticks, rounded down to five minutes, hashed together with
// the trusted client token.
func secMSGEC(now time.Time) string {
	seconds := now.Unix() + windowsEpochOffset
	seconds -= seconds % secMSGECRoundSeconds
	ticks := seconds * 10_000_000

	sum := sha256.Sum256([]byte(fmt.Sprintf("%d%s", ticks, edgeTrustedToken)))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func (s *EdgeTTSService) timestamp() string {
	return s.now().UTC().Format(edgeTimestampLayout)
}

func (s *EdgeTTSService) speechConfigMessage() []byte {
	body := `{"context":{"synthesis":{"audio":{"metadataoptions":{"sentenceBoundaryEnabled":"false","wordBoundaryEnabled":"false"},"outputFormat":"` +
		edgeOutputFormat + `"}}}}`

	return []byte("X-Timestamp:" + s.timestamp() + "\r\n" +
		"Content-Type:application/json; charset=utf-8\r\n" +
		"Path:speech.config\r\n\r\n" +
		body + "\r\n")
}

func (s *EdgeTTSService) ssmlMessage(escaped string, voice Voice) []byte {
	requestID := strings.ReplaceAll(uuid.NewString(), "-", "")

	return []byte("X-RequestId:" + requestID + "\r\n" +
		"Content-Type:application/ssml+xml\r\n" +
		"X-Timestamp:" + s.timestamp() + "Z\r\n" +
		"Path:ssml\r\n\r\n" +
		buildSSML(escaped, voice))
}

// buildSSML wraps already escaped text in the voice and prosody elements.
func buildSSML(escaped string, voice Voice) string {
	rate := voice.Rate
	if rate == "" {
		rate = "+0%"
	}
	pitch := voice.Pitch
	if pitch == "" {
		pitch = "+0Hz"
	}

	return fmt.Sprintf(
		"<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='en-US'>"+
			"<voice name='%s'><prosody pitch='%s' rate='%s' volume='+0%%'>%s</prosody></voice></speak>",
		edgeVoiceName(voice.VoiceName), pitch, rate, escaped)
}

// splitEdgeText cuts escaped text into pieces of at most maxBytes bytes.
// A cut lands after the last sentence end in range, else at the last
// whitespace, else at the last rune boundary. Cuts never fall inside a
// UTF-8 sequence or an XML entity such as &amp;.
func splitEdgeText(escaped string, maxBytes int) []string {
	var pieces []string
	text := strings.TrimSpace(escaped)

	for len(text) > maxBytes {
		cut := maxBytes
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		window := text[:cut]

		if end := lastSentenceEnd(window); end > 0 {
			cut = end
		} else if sp := strings.LastIndexAny(window, " \t\n"); sp > 0 {
			cut = sp
		}

		if amp := strings.LastIndexByte(text[:cut], '&'); amp > 0 && !strings.Contains(text[amp:cut], ";") {
			cut = amp
		}
		if cut == 0 {
			cut = maxBytes
		}

		if piece := strings.TrimSpace(text[:cut]); piece != "" {
			pieces = append(pieces, piece)
		}
		text = strings.TrimSpace(text[cut:])
	}

	if text != "" {
		pieces = append(pieces, text)
	}
	return pieces
}

// lastSentenceEnd returns the byte offset just past the last sentence
// terminator in s, or 0 if there is none.
func lastSentenceEnd(s string) int {
	end := 0
	for i, r := range s {
		switch r {
		case '.', '!', '?', '\n', '。', '！', '？', '।', '؟':
			end = i + utf8.RuneLen(r)
		}
	}
	return end
}

// edgeVoiceName expands a short name such as en-US-JennyNeural into the
// long form the service requires.
func edgeVoiceName(short string) string {
	parts := strings.SplitN(short, "-", 3)
	if len(parts) != 3 {
		return short
	}
	return fmt.Sprintf("Microsoft Server Speech Text to Speech Voice (%s-%s, %s)", parts[0], parts[1], parts[2])
}

// cleanSpeechText replaces control characters the service rejects with spaces.
func cleanSpeechText(text string) string {
	return strings.Map(func(r rune) rune {
		if r == '\t' || (r < 32 && r != '\n' && r != '\r') {
			return ' '
		}
		return r
	}, text)
}

func parseEdgeHeaders(block []byte) map[string]string {
	headers := make(map[string]string)
	for _, line := range strings.Split(string(block), "\r\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		headers[key] = strings.TrimSpace(value)
	}
	return headers
}

func splitEdgeTextMessage(data []byte) (map[string]string, []byte) {
	head, body, _ := bytes.Cut(data, []byte("\r\n\r\n"))
	return parseEdgeHeaders(head), body
}

func splitEdgeBinaryMessage(data []byte) (map[string]string, []byte, error) {
	if len(data) < 2 {
		return nil, nil, fmt.Errorf("binary frame too short")
	}
	headerLen := int(binary.BigEndian.Uint16(data[:2]))
	if 2+headerLen > len(data) {
		return nil, nil, fmt.Errorf("binary frame header length %d exceeds frame size %d", headerLen, len(data))
	}
	return parseEdgeHeaders(data[2 : 2+headerLen]), data[2+headerLen:], nil
}
