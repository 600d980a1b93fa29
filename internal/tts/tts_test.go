package tts

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingPlayer captures the audio handed to it.
type recordingPlayer struct {
	mu    sync.Mutex
	paths []string
	data  [][]byte
	err   error
}

func (p *recordingPlayer) Play(ctx context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	p.paths = append(p.paths, path)
	p.data = append(p.data, b)
	return p.err
}

type runCall struct {
	wait bool
	name string
	args []string
}

type fakeRunner struct {
	calls []runCall
	err   error
}

func (r *fakeRunner) run(ctx context.Context, wait bool, name string, args ...string) error {
	r.calls = append(r.calls, runCall{wait: wait, name: name, args: args})
	return r.err
}

func intPtr(v int) *int { return &v }

func TestMacOS_VolumeIgnored(t *testing.T) {
	runner := &fakeRunner{}
	p := NewMacOS(WithMacOSRunner(runner.run, nil))

	err := p.Speak(context.Background(), &Request{Text: "Build finished", Volume: intPtr(40)})
	require.NoError(t, err)

	require.Len(t, runner.calls, 1)
	call := runner.calls[0]
	assert.Equal(t, "say", call.name)
	assert.False(t, call.wait)
	assert.Equal(t, []string{"-r", "200", "Build finished"}, call.args)
	for _, a := range call.args {
		assert.NotContains(t, a, "40")
	}
}

func TestMacOS_Speak(t *testing.T) {
	tests := []struct {
		name     string
		opts     []MacOSOption
		req      Request
		wantArgs []string
		wantWait bool
	}{
		{
			name:     "voice and rate from request",
			req:      Request{Text: "hi", Voice: "Samantha", Rate: 180},
			wantArgs: []string{"-v", "Samantha", "-r", "180", "hi"},
		},
		{
			name:     "configured defaults",
			opts:     []MacOSOption{WithMacOSVoice("Alex"), WithMacOSRate(220)},
			req:      Request{Text: "hi"},
			wantArgs: []string{"-v", "Alex", "-r", "220", "hi"},
		},
		{
			name:     "blocking mode",
			opts:     []MacOSOption{WithMacOSAsync(false)},
			req:      Request{Text: "hi"},
			wantArgs: []string{"-r", "200", "hi"},
			wantWait: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			p := NewMacOS(append(tt.opts, WithMacOSRunner(runner.run, nil))...)
			require.NoError(t, p.Speak(context.Background(), &tt.req))
			require.Len(t, runner.calls, 1)
			assert.Equal(t, tt.wantArgs, runner.calls[0].args)
			assert.Equal(t, tt.wantWait, runner.calls[0].wait)
		})
	}
}

func TestMacOS_EmptyTextIsNoop(t *testing.T) {
	runner := &fakeRunner{}
	p := NewMacOS(WithMacOSRunner(runner.run, nil))
	require.NoError(t, p.Speak(context.Background(), &Request{Text: "  "}))
	assert.Empty(t, runner.calls)
}

func TestMacOS_RunFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("exec: \"say\": executable file not found")}
	p := NewMacOS(WithMacOSRunner(runner.run, nil))
	err := p.Speak(context.Background(), &Request{Text: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "say failed")
}

func TestMacOS_Capabilities(t *testing.T) {
	p := NewMacOS()
	assert.Equal(t, "macos", p.Name())
	assert.True(t, p.IsConfigured())
	assert.Zero(t, p.EstimateCost(10000))
}

func TestMacOS_ListVoices(t *testing.T) {
	out := []byte("Alex                en_US    # Most people recognize me by my voice.\n" +
		"Kyoko               ja_JP    # こんにちは、私の名前はKyokoです。\n" +
		"Bad Line\n" +
		"Eddy (English (US)) en_US    # Hello! My name is Eddy.\n")
	p := NewMacOS(WithMacOSRunner(nil, func(ctx context.Context, name string, args ...string) ([]byte, error) {
		assert.Equal(t, "say", name)
		assert.Equal(t, []string{"-v", "?"}, args)
		return out, nil
	}))

	voices, err := p.ListVoices(context.Background())
	require.NoError(t, err)
	require.Len(t, voices, 3)
	assert.Equal(t, "Alex", voices[0].ID)
	assert.Equal(t, "en_US", voices[0].Language)
	assert.Equal(t, "Kyoko", voices[1].Name)
	assert.Equal(t, "Eddy (English (US))", voices[2].Name)
}

func TestCommandPlayer_PicksFirstAvailable(t *testing.T) {
	tests := []struct {
		name      string
		installed []string
		wantName  string
		wantArgs  []string
	}{
		{"afplay", []string{"afplay", "aplay"}, "afplay", []string{"/tmp/a.wav"}},
		{"paplay", []string{"paplay", "ffplay"}, "paplay", []string{"/tmp/a.wav"}},
		{"aplay", []string{"aplay"}, "aplay", []string{"-q", "/tmp/a.wav"}},
		{"ffplay", []string{"ffplay"}, "ffplay", []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "/tmp/a.wav"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotName string
			var gotArgs []string
			p := &CommandPlayer{
				lookPath: func(name string) (string, error) {
					for _, i := range tt.installed {
						if i == name {
							return "/usr/bin/" + name, nil
						}
					}
					return "", errors.New("not found")
				},
				run: func(ctx context.Context, name string, args ...string) error {
					gotName, gotArgs = name, args
					return nil
				},
			}
			require.NoError(t, p.Play(context.Background(), "/tmp/a.wav"))
			assert.Equal(t, tt.wantName, gotName)
			assert.Equal(t, tt.wantArgs, gotArgs)
		})
	}
}

func TestCommandPlayer_NoPlayer(t *testing.T) {
	p := &CommandPlayer{
		lookPath: func(string) (string, error) { return "", errors.New("not found") },
	}
	err := p.Play(context.Background(), "/tmp/a.wav")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no audio player found")
}

func TestPlayStream_RemovesTempFile(t *testing.T) {
	player := &recordingPlayer{}
	require.NoError(t, playStream(context.Background(), player, bytesReader("abc"), "mp3"))

	require.Len(t, player.paths, 1)
	assert.Equal(t, []byte("abc"), player.data[0])
	_, err := os.Stat(player.paths[0])
	assert.True(t, os.IsNotExist(err))
}
