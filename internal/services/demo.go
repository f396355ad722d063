package services

import (
	"context"
	"fmt"
	"strings"
)

// DemoStoryWriter returns a fixed story personalised with the child's name
// and theme. It makes no network calls and is used when demo mode is on and
// no LLM key is configured.
type DemoStoryWriter struct{}

var _ StoryWriter = DemoStoryWriter{}

func (DemoStoryWriter) WriteStory(ctx context.Context, req StoryRequest) (string, error) {
	name := TitleName(strings.TrimSpace(req.ChildName))
	if name == "" {
		return "", ErrEmptyChildName
	}
	theme := strings.TrimSpace(req.Theme)
	if theme == "" {
		theme = "a magical adventure"
	}

	paragraphs := []string{
		fmt.Sprintf("Once upon a time, in a cozy little house at the end of a quiet street, there lived a child named %s. "+
			"Every evening, %s snuggled under a soft blanket and listened to the wind whisper goodnight.", name, name),
		fmt.Sprintf("One night, just as the stars began to twinkle, %s noticed a tiny glowing light by the window. "+
			"It was a friendly firefly, and it wanted to show %s a wonderful world of %s.", name, name, theme),
		fmt.Sprintf("Together they floated over sleepy hills and silver rivers. %s laughed and waved at the moon, "+
			"and the moon smiled back, warm and kind.", name),
		fmt.Sprintf("When the adventure was over, the firefly carried %s gently home. "+
			"%s yawned a big, happy yawn, hugged a favourite teddy, and drifted off to the sweetest dreams.", name, name),
		fmt.Sprintf("Goodnight, %s. Sleep tight.", name),
	}

	return strings.Join(paragraphs, "\n\n"), nil
}
