package story

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobarin/storytime/internal/quota"
	"github.com/bobarin/storytime/internal/services"
	"github.com/bobarin/storytime/internal/storage"
)

type fakeWriter struct {
	mu    sync.Mutex
	calls []services.StoryRequest
	err   error
}

func (f *fakeWriter) WriteStory(ctx context.Context, req services.StoryRequest) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return services.DemoStoryWriter{}.WriteStory(ctx, req)
}

type fakeNarrator struct {
	voice services.Voice
	err   error
}

func (f *fakeNarrator) Narrate(ctx context.Context, text string, voice services.Voice) (*services.TTSResponse, error) {
	f.voice = voice
	if f.err != nil {
		return nil, f.err
	}
	return &services.TTSResponse{AudioData: []byte("ID3-audio"), DurationMs: 1234, Format: "mp3"}, nil
}

func newTestService(t *testing.T, writer services.StoryWriter, narrator Narrator, max int) *Service {
	t.Helper()

	audio, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	limiter := quota.NewLimiter(quota.NewMemoryStore(), max)
	return NewService(writer, narrator, audio, limiter)
}

func TestSanitizeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr error
	}{
		{in: "Emma", want: "Emma"},
		{in: "  mary-jane  ", want: "mary-jane"},
		{in: "O'Brien", want: "O'Brien"},
		{in: "Zoë", want: "Zoë"},
		{in: "Emma123!", want: "Emma"},
		{in: "Ana   Sofía", want: "Ana Sofía"},
		{in: "", wantErr: ErrEmptyName},
		{in: "   ", wantErr: ErrEmptyName},
		{in: "1234", wantErr: ErrInvalidName},
		{in: "-'", wantErr: ErrInvalidName},
	}

	for _, tt := range tests {
		got, err := SanitizeName(tt.in)
		if tt.wantErr != nil {
			assert.ErrorIs(t, err, tt.wantErr, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestResolveTheme(t *testing.T) {
	t.Parallel()

	got, err := ResolveTheme("Space Adventure", "ignored")
	require.NoError(t, err)
	assert.Equal(t, "Space Adventure", got)

	got, err = ResolveTheme("Custom", "  a dragon who bakes cakes ")
	require.NoError(t, err)
	assert.Equal(t, "a dragon who bakes cakes", got)

	_, err = ResolveTheme("Custom", "")
	assert.ErrorIs(t, err, ErrNoTheme)

	_, err = ResolveTheme("", "")
	assert.ErrorIs(t, err, ErrNoTheme)
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	writer := &fakeWriter{}
	narrator := &fakeNarrator{}
	svc := newTestService(t, writer, narrator, 3)

	res, err := svc.Generate(ctx, Request{
		SessionID: "s1",
		ChildName: "emma",
		AgeGroup:  "early_reader",
		Theme:     "Underwater World",
		Voice:     "friendly_male_uk",
		Language:  "fr",
	})
	require.NoError(t, err)

	assert.Equal(t, "Emma", res.ChildName)
	assert.Equal(t, "early_reader", res.AgeGroup)
	assert.Equal(t, "fr", res.Language)
	assert.Contains(t, res.Story, "Emma")
	assert.True(t, res.HasAudio)
	assert.Equal(t, storage.AudioPath(res.ID), res.AudioURL)
	assert.Equal(t, 1234, res.AudioDurationMs)
	assert.Equal(t, "friendly_male_uk", narrator.voice.Key)
	assert.True(t, strings.HasPrefix(res.Status, "Story created for Emma! Duration: ~"))
	assert.Contains(t, res.DurationText, "min")

	require.NotNil(t, res.Quota)
	assert.Equal(t, 2, res.Quota.Remaining)

	require.Len(t, writer.calls, 1)
	assert.Equal(t, "emma", writer.calls[0].ChildName)
	assert.Equal(t, "Underwater World", writer.calls[0].Theme)

	data, err := svc.Audio(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3-audio"), data)
}

func TestGenerateNormalizesUnknownOptions(t *testing.T) {
	t.Parallel()

	writer := &fakeWriter{}
	svc := newTestService(t, writer, nil, 3)

	res, err := svc.Generate(context.Background(), Request{
		SessionID:   "s1",
		ChildName:   "Leo",
		AgeGroup:    "teenager",
		Theme:       "Custom",
		CustomTheme: "robots",
		Voice:       "pirate",
		Language:    "xx",
	})
	require.NoError(t, err)

	assert.Equal(t, "preschool", res.AgeGroup)
	assert.Equal(t, "en", res.Language)
	assert.Equal(t, services.DefaultVoiceKey, res.Voice)
	assert.Equal(t, "robots", res.Theme)
	assert.False(t, res.HasAudio)
	assert.Empty(t, res.AudioURL)
}

// Swaps the global logger, so it must not run in parallel.
func TestGenerateLogsUnknownAgeGroup(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	svc := newTestService(t, &fakeWriter{}, nil, 3)

	_, err := svc.Generate(context.Background(), Request{SessionID: "s1", ChildName: "Mia", AgeGroup: "toddler", Theme: "Custom", CustomTheme: "boats"})
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "unknown age group")

	_, err = svc.Generate(context.Background(), Request{SessionID: "s1", ChildName: "Mia", Theme: "Custom", CustomTheme: "boats"})
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "unknown age group", "an omitted age group is not reported")

	_, err = svc.Generate(context.Background(), Request{SessionID: "s1", ChildName: "Mia", AgeGroup: "teenager", Theme: "Custom", CustomTheme: "boats"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"message":"unknown age group"`)
	assert.Contains(t, buf.String(), `"age_group":"teenager"`)
	assert.Contains(t, buf.String(), `"fallback":"preschool"`)
}

func TestGenerateQuotaExhausted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	writer := &fakeWriter{}
	svc := newTestService(t, writer, nil, 2)

	for i := 0; i < 2; i++ {
		_, err := svc.Generate(ctx, Request{SessionID: "s1", ChildName: "Mia", Theme: "Princess & Castle"})
		require.NoError(t, err)
	}

	_, err := svc.Generate(ctx, Request{SessionID: "s1", ChildName: "Mia", Theme: "Princess & Castle"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, "You've created 2 stories today! Come back tomorrow for more magical adventures.", UserMessage(err))
	assert.Len(t, writer.calls, 2, "writer must not be called once the quota is spent")

	_, err = svc.Generate(ctx, Request{SessionID: "s2", ChildName: "Mia", Theme: "Princess & Castle"})
	assert.NoError(t, err, "other sessions keep their own allowance")
}

func TestGenerateRefundsOnWriterFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	writer := &fakeWriter{err: errors.New("llm down")}
	svc := newTestService(t, writer, nil, 1)

	_, err := svc.Generate(ctx, Request{SessionID: "s1", ChildName: "Mia", Theme: "Space Adventure"})
	require.Error(t, err)
	assert.Equal(t, "Oops! llm down", UserMessage(err))

	writer.err = nil
	_, err = svc.Generate(ctx, Request{SessionID: "s1", ChildName: "Mia", Theme: "Space Adventure"})
	assert.NoError(t, err, "failed attempt must not use up the allowance")
}

func TestGenerateValidationDoesNotConsumeQuota(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	writer := &fakeWriter{}
	svc := newTestService(t, writer, nil, 1)

	_, err := svc.Generate(ctx, Request{SessionID: "s1", ChildName: "", Theme: "Space Adventure"})
	assert.ErrorIs(t, err, ErrEmptyName)
	_, err = svc.Generate(ctx, Request{SessionID: "s1", ChildName: "Mia", Theme: ""})
	assert.ErrorIs(t, err, ErrNoTheme)

	_, err = svc.Generate(ctx, Request{SessionID: "s1", ChildName: "Mia", Theme: "Space Adventure"})
	assert.NoError(t, err)
	assert.Len(t, writer.calls, 1)
}

func TestGenerateKeepsTextWhenNarrationFails(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &fakeWriter{}, &fakeNarrator{err: errors.New("tts down")}, 3)

	res, err := svc.Generate(context.Background(), Request{SessionID: "s1", ChildName: "Noah", Theme: "Dinosaur Discovery"})
	require.NoError(t, err)
	assert.False(t, res.HasAudio)
	assert.Empty(t, res.AudioURL)
	assert.NotEmpty(t, res.Story)
}

func TestGenerateWithoutLimiter(t *testing.T) {
	t.Parallel()

	svc := NewService(&fakeWriter{}, nil, nil, nil)
	for i := 0; i < 20; i++ {
		res, err := svc.Generate(context.Background(), Request{ChildName: "Noah", Theme: "Magic & Wizards"})
		require.NoError(t, err)
		assert.Nil(t, res.Quota)
	}

	_, err := svc.Audio(context.Background(), "anything")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUserMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", UserMessage(nil))
	assert.Equal(t, "Please enter your child's name.", UserMessage(ErrEmptyName))
	assert.Equal(t, "Please enter a valid name (letters only).", UserMessage(ErrInvalidName))
	assert.Equal(t, "Please select a theme or enter a custom theme.", UserMessage(ErrNoTheme))
	assert.Equal(t, "Service temporarily unavailable. Please try again later.",
		UserMessage(services.ErrMissingAPIKey))
	assert.Equal(t, "Service temporarily unavailable. Please try again later.",
		UserMessage(errors.Join(errors.New("wrapped"), services.ErrMissingAPIKey)))

	assert.True(t, IsUserError(ErrNoTheme))
	assert.False(t, IsUserError(&QuotaError{Message: "x"}))
}
