package job

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"image/gif"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"webpconv/container"
	"webpconv/decoder"
	"webpconv/framesync"
	"webpconv/logger"
	"webpconv/models"
	"webpconv/success"
	"webpconv/webptest"
	"webpconv/workspace"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// fakeDecoder writes PNG frames into the workspace from a goroutine, the way
// anim_dump does, and counts how often it was asked to work.
type fakeDecoder struct {
	mu          sync.Mutex
	staticCalls int
	dumpCalls   int

	static    []byte
	staticErr error
	colors    []color.NRGBA // one per frame to write
	exitErr   error
	hang      bool          // keep "running" until cancelled
	exitDelay time.Duration // time a cancelled dump takes to exit
	corrupt   map[int]bool  // frames written as garbage
	exitedAt  time.Time
}

func (f *fakeDecoder) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.staticCalls, f.dumpCalls
}

func (f *fakeDecoder) DecodeStatic(ctx context.Context, input string) ([]byte, error) {
	f.mu.Lock()
	f.staticCalls++
	f.mu.Unlock()
	if f.staticErr != nil {
		return nil, f.staticErr
	}
	return f.static, nil
}

func (f *fakeDecoder) DumpFrames(ctx context.Context, input, dir string) (*decoder.FrameDump, error) {
	f.mu.Lock()
	f.dumpCalls++
	f.mu.Unlock()

	meta, err := container.ReadMetadata(input)
	if err != nil {
		return nil, &models.ExternalProcessError{Tool: "fake", Err: err}
	}
	exited := make(chan error, 1)
	go func() {
		defer close(exited)
		for i, c := range f.colors {
			time.Sleep(2 * time.Millisecond)
			name := filepath.Join(dir, fmt.Sprintf("%s%04d.png", decoder.FramePrefix, i))
			data := webptest.FramePNG(meta.CanvasWidth, meta.CanvasHeight, c)
			if f.corrupt[i] {
				data = []byte("not a png")
			}
			if err := os.WriteFile(name, data, 0o644); err != nil {
				exited <- err
				return
			}
		}
		if f.hang {
			<-ctx.Done()
			time.Sleep(f.exitDelay)
			f.mu.Lock()
			f.exitedAt = time.Now()
			f.mu.Unlock()
			exited <- ctx.Err()
			return
		}
		exited <- f.exitErr
	}()
	return &decoder.FrameDump{Metadata: meta, Exited: exited}, nil
}

type recordingHistory struct {
	successes []success.SuccessRecord
	failures  []string // error kinds
}

func (h *recordingHistory) RecordSuccess(r success.SuccessRecord) error {
	h.successes = append(h.successes, r)
	return nil
}

func (h *recordingHistory) RecordFailure(id string, j models.ConversionJob, output string, err error) error {
	h.failures = append(h.failures, models.ErrorKind(err))
	return nil
}

var (
	red   = color.NRGBA{R: 255, A: 255}
	green = color.NRGBA{G: 255, A: 255}
	blue  = color.NRGBA{B: 255, A: 255}
)

func newTestConverter(t *testing.T, dec decoder.Decoder, timeout time.Duration) (*Converter, *recordingHistory, string) {
	t.Helper()
	return newConverterWithWorkspace(t, dec, timeout, workspace.Options{Attempts: 2, RetryDelay: time.Millisecond})
}

func newConverterWithWorkspace(t *testing.T, dec decoder.Decoder, timeout time.Duration, ws workspace.Options) (*Converter, *recordingHistory, string) {
	t.Helper()
	root := t.TempDir()
	hist := &recordingHistory{}
	conv, err := NewConverter(dec, Options{
		AlphaThreshold: models.DefaultAlphaThreshold,
		WorkspaceRoot:  root,
		Workspace:      ws,
		Sync:           framesync.Synchronizer{Interval: 5 * time.Millisecond, Timeout: timeout},
		History:        hist,
	})
	if err != nil {
		t.Fatalf("NewConverter: %v", err)
	}
	return conv, hist, root
}

func writeWebP(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readGIF(t *testing.T, path string) *gif.GIF {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	g, err := gif.DecodeAll(f)
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return g
}

func delaysMs(g *gif.GIF) []int {
	out := make([]int, len(g.Delay))
	for i, d := range g.Delay {
		out[i] = d * 10
	}
	return out
}

func assertNoWorkspace(t *testing.T, root, input string) {
	t.Helper()
	if _, err := os.Stat(workspace.DirFor(root, input)); !os.IsNotExist(err) {
		t.Errorf("workspace for %s still exists (stat err %v)", input, err)
	}
}

func TestConvertAnimatedScenario(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	input := writeWebP(t, dir, "animated.webp", webptest.Animated(8, 6, []int{100, 150, 100}, 0))
	dec := &fakeDecoder{colors: []color.NRGBA{red, green, blue}}
	conv, hist, root := newTestConverter(t, dec, 5*time.Second)

	out, err := conv.ConvertAll(context.Background(), []models.ConversionJob{{
		Input:    input,
		Output:   "out.gif",
		Settings: &models.Settings{Quality: models.IntPtr(80)},
	}})
	if err != nil {
		t.Fatalf("ConvertAll: %v", err)
	}
	if !reflect.DeepEqual(out, []string{"out.gif"}) {
		t.Fatalf("outputs = %v", out)
	}

	g := readGIF(t, filepath.Join(dir, "out.gif"))
	if len(g.Image) != 3 {
		t.Fatalf("frame count = %d, want 3", len(g.Image))
	}
	if got := delaysMs(g); !reflect.DeepEqual(got, []int{100, 150, 100}) {
		t.Errorf("delays = %v", got)
	}
	if g.LoopCount != 0 {
		t.Errorf("loop count = %d, want 0 (forever)", g.LoopCount)
	}
	assertNoWorkspace(t, root, input)

	if len(hist.successes) != 1 {
		t.Fatalf("history successes = %d", len(hist.successes))
	}
	rec := hist.successes[0]
	if rec.Mode != "animated" || rec.FrameCount != 3 || rec.Settings.Quality != 80 || rec.ID == "" {
		t.Errorf("success record = %+v", rec)
	}
}

func TestConvertAnimatedInfersGIFAndThresholdsAlpha(t *testing.T) {
	dir := t.TempDir()
	input := writeWebP(t, dir, "fade.webp", webptest.Animated(4, 4, []int{40, 40}, 2))
	dec := &fakeDecoder{colors: []color.NRGBA{{R: 200, G: 10, B: 10, A: 60}, red}}
	conv, _, root := newTestConverter(t, dec, 5*time.Second)

	out, err := conv.Convert(context.Background(), models.ConversionJob{Input: input})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if want := filepath.Join(dir, "fade.gif"); out != want {
		t.Errorf("output = %s, want %s", out, want)
	}
	g := readGIF(t, out)
	if g.LoopCount != 2 {
		t.Errorf("loop count = %d, want 2", g.LoopCount)
	}
	first := g.Image[0]
	if _, _, _, a := first.Palette[first.ColorIndexAt(0, 0)].RGBA(); a != 0 {
		t.Errorf("alpha 60 should have been snapped to transparent, got alpha %d", a)
	}
	second := g.Image[1]
	if _, _, _, a := second.Palette[second.ColorIndexAt(0, 0)].RGBA(); a == 0 {
		t.Error("opaque frame rendered transparent")
	}
	assertNoWorkspace(t, root, input)
}

func TestConvertIsRepeatable(t *testing.T) {
	dir := t.TempDir()
	input := writeWebP(t, dir, "loop.webp", webptest.Animated(5, 5, []int{30, 70, 30, 70}, 0))
	dec := &fakeDecoder{colors: []color.NRGBA{red, green, blue, green}}
	conv, _, _ := newTestConverter(t, dec, 5*time.Second)

	var runs [][]int
	for range 2 {
		out, err := conv.Convert(context.Background(), models.ConversionJob{Input: input})
		if err != nil {
			t.Fatalf("Convert: %v", err)
		}
		runs = append(runs, delaysMs(readGIF(t, out)))
	}
	if !reflect.DeepEqual(runs[0], runs[1]) || len(runs[0]) != 4 {
		t.Errorf("runs differ: %v vs %v", runs[0], runs[1])
	}
}

func TestConvertStaticMatchesDecoder(t *testing.T) {
	dir := t.TempDir()
	input := writeWebP(t, dir, "static.webp", webptest.Static(3, 3))
	dec := &fakeDecoder{static: webptest.FramePNG(3, 3, green)}
	conv, hist, _ := newTestConverter(t, dec, time.Second)

	out, err := conv.Convert(context.Background(), models.ConversionJob{Input: input})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if want := filepath.Join(dir, "static.png"); out != want {
		t.Errorf("output = %s, want %s", out, want)
	}
	got, _ := os.ReadFile(out)
	direct, _ := dec.DecodeStatic(context.Background(), input)
	if !bytes.Equal(got, direct) {
		t.Error("static output is not byte-identical to the decoder's output")
	}
	if _, dumps := dec.calls(); dumps != 0 {
		t.Errorf("static input should not dump frames, got %d dumps", dumps)
	}
	if len(hist.successes) != 1 || hist.successes[0].Mode != "static" {
		t.Errorf("history = %+v", hist.successes)
	}
}

func TestConvertCreatesOutputDir(t *testing.T) {
	dir := t.TempDir()
	input := writeWebP(t, dir, "still.webp", webptest.Static(2, 2))
	conv, _, _ := newTestConverter(t, &fakeDecoder{static: []byte("png")}, time.Second)

	target := filepath.Join(dir, "nested", "deeper", "still.png")
	out, err := conv.Convert(context.Background(), models.ConversionJob{Input: input, Output: target})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if out != target {
		t.Errorf("output = %s", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Error(err)
	}
}

func TestUnclassifiableInputFallsBackToPNG(t *testing.T) {
	dir := t.TempDir()
	input := writeWebP(t, dir, "odd.webp", []byte("definitely not riff"))
	out, animated := ResolveOutput(input, "")
	if animated || out != filepath.Join(dir, "odd.png") {
		t.Errorf("ResolveOutput = %s, %v", out, animated)
	}

	out, animated = ResolveOutput(input, "/tmp/x.GIF")
	if !animated || out != "/tmp/x.GIF" {
		t.Errorf("explicit gif output: %s, %v", out, animated)
	}
}

func TestBatchValidatesEverythingFirst(t *testing.T) {
	dir := t.TempDir()
	first := writeWebP(t, dir, "one.webp", webptest.Static(2, 2))
	third := writeWebP(t, dir, "three.webp", webptest.Animated(2, 2, []int{10}, 0))
	dec := &fakeDecoder{static: []byte("png"), colors: []color.NRGBA{red}}
	conv, hist, _ := newTestConverter(t, dec, time.Second)

	_, err := conv.ConvertAll(context.Background(), []models.ConversionJob{
		{Input: first},
		{Input: filepath.Join(dir, "missing.webp")},
		{Input: third},
	})
	var ve *models.ValidationError
	if !errors.As(err, &ve) || ve.Index != 1 {
		t.Fatalf("expected validation error for job 1, got %v", err)
	}
	if s, d := dec.calls(); s != 0 || d != 0 {
		t.Errorf("decoder ran before validation finished: %d static, %d dumps", s, d)
	}
	for _, p := range []string{"one.png", "three.gif"} {
		if _, err := os.Stat(filepath.Join(dir, p)); !os.IsNotExist(err) {
			t.Errorf("%s was written", p)
		}
	}
	if len(hist.successes)+len(hist.failures) != 0 {
		t.Error("validation failures must not reach the history")
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	good := writeWebP(t, dir, "good.webp", webptest.Static(2, 2))
	wrongExt := writeWebP(t, dir, "image.png", []byte("x"))
	if err := os.Mkdir(filepath.Join(dir, "folder.webp"), 0o755); err != nil {
		t.Fatal(err)
	}
	conv, _, _ := newTestConverter(t, &fakeDecoder{}, time.Second)

	tests := []struct {
		name string
		job  models.ConversionJob
		ok   bool
	}{
		{"valid", models.ConversionJob{Input: good}, true},
		{"valid gif output", models.ConversionJob{Input: good, Output: "a.gif"}, true},
		{"missing input field", models.ConversionJob{}, false},
		{"does not exist", models.ConversionJob{Input: filepath.Join(dir, "nope.webp")}, false},
		{"directory", models.ConversionJob{Input: filepath.Join(dir, "folder.webp")}, false},
		{"wrong extension", models.ConversionJob{Input: wrongExt}, false},
		{"wrong output extension", models.ConversionJob{Input: good, Output: "a.jpg"}, false},
		{"quality too high", models.ConversionJob{Input: good, Settings: &models.Settings{Quality: models.IntPtr(101)}}, false},
		{"bad transparent", models.ConversionJob{Input: good, Settings: &models.Settings{Transparent: models.StringPtr("red")}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := conv.Validate(-1, tt.job)
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			var ve *models.ValidationError
			if !tt.ok && !errors.As(err, &ve) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestProcessingErrorAbortsBatch(t *testing.T) {
	dir := t.TempDir()
	first := writeWebP(t, dir, "first.webp", webptest.Static(2, 2))
	broken := writeWebP(t, dir, "broken.webp", webptest.Animated(2, 2, []int{10, 10}, 0))
	last := writeWebP(t, dir, "last.webp", webptest.Static(2, 2))
	exitErr := &models.ExternalProcessError{Tool: "anim_dump", Err: errors.New("exit status 1")}
	dec := &fakeDecoder{static: []byte("png"), exitErr: exitErr}
	conv, hist, root := newTestConverter(t, dec, 5*time.Second)

	outs, err := conv.ConvertAll(context.Background(), []models.ConversionJob{{Input: first}, {Input: broken}, {Input: last}})
	var pe *models.ExternalProcessError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ExternalProcessError, got %v", err)
	}
	if outs != nil {
		t.Errorf("partial results reported: %v", outs)
	}
	if statics, _ := dec.calls(); statics != 1 {
		t.Errorf("job after the failure ran: %d static decodes", statics)
	}
	if _, err := os.Stat(filepath.Join(dir, "first.png")); err != nil {
		t.Error("earlier output should stay on disk")
	}
	if _, err := os.Stat(filepath.Join(dir, "broken.gif")); !os.IsNotExist(err) {
		t.Error("failed job left an output file")
	}
	assertNoWorkspace(t, root, broken)
	if !reflect.DeepEqual(hist.failures, []string{"external_process"}) {
		t.Errorf("failure kinds = %v", hist.failures)
	}
}

func TestSynchronizationTimeout(t *testing.T) {
	dir := t.TempDir()
	input := writeWebP(t, dir, "stuck.webp", webptest.Animated(2, 2, []int{10, 10, 10}, 0))
	dec := &fakeDecoder{colors: []color.NRGBA{red}, hang: true}
	conv, _, root := newTestConverter(t, dec, 150*time.Millisecond)

	start := time.Now()
	_, err := conv.Convert(context.Background(), models.ConversionJob{Input: input})
	var te *models.SynchronizationTimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected SynchronizationTimeoutError, got %v", err)
	}
	if te.Expected != 3 || te.Observed != 1 {
		t.Errorf("expected/observed = %d/%d", te.Expected, te.Observed)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("timeout took %s", elapsed)
	}
	assertNoWorkspace(t, root, input)
}

func TestStaticDecodeFailure(t *testing.T) {
	dir := t.TempDir()
	input := writeWebP(t, dir, "bad.webp", webptest.Static(2, 2))
	dec := &fakeDecoder{staticErr: &models.ExternalProcessError{Tool: "dwebp", Err: errors.New("exit status 255")}}
	conv, hist, _ := newTestConverter(t, dec, time.Second)

	if _, err := conv.Convert(context.Background(), models.ConversionJob{Input: input}); models.ErrorKind(err) != "external_process" {
		t.Fatalf("expected external process error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "bad.png")); !os.IsNotExist(err) {
		t.Error("output written for a failed decode")
	}
	if len(hist.failures) != 1 {
		t.Errorf("failures recorded = %d", len(hist.failures))
	}
}

func TestManifestDefaultsLayering(t *testing.T) {
	dir := t.TempDir()
	input := writeWebP(t, dir, "m.webp", webptest.Animated(3, 3, []int{20}, 0))
	dec := &fakeDecoder{colors: []color.NRGBA{blue}}
	conv, hist, _ := newTestConverter(t, dec, 5*time.Second)

	m := &models.Manifest{
		Defaults: &models.Settings{Quality: models.IntPtr(55), Transparent: models.StringPtr("0x00ff00")},
		Jobs: []models.ConversionJob{
			{Input: input},
			{Input: input, Output: filepath.Join(dir, "other.gif"), Settings: &models.Settings{Quality: models.IntPtr(5)}},
		},
	}
	if _, err := conv.ConvertManifest(context.Background(), m); err != nil {
		t.Fatalf("ConvertManifest: %v", err)
	}
	if len(hist.successes) != 2 {
		t.Fatalf("successes = %d", len(hist.successes))
	}
	if got := hist.successes[0].Settings; got.Quality != 55 || got.Transparent != "0x00ff00" {
		t.Errorf("job 0 settings = %+v", got)
	}
	if got := hist.successes[1].Settings; got.Quality != 5 || got.Transparent != "0x00ff00" {
		t.Errorf("job 1 settings = %+v", got)
	}

	bad := &models.Manifest{Defaults: &models.Settings{Quality: models.IntPtr(-1)}, Jobs: m.Jobs}
	var ve *models.ValidationError
	if _, err := conv.ConvertManifest(context.Background(), bad); !errors.As(err, &ve) {
		t.Errorf("expected validation error for bad defaults, got %v", err)
	}
}

func TestNewConverterRejectsBadOptions(t *testing.T) {
	if _, err := NewConverter(nil, Options{}); err == nil {
		t.Error("expected error without decoder")
	}
	if _, err := NewConverter(&fakeDecoder{}, Options{AlphaThreshold: 300}); err == nil {
		t.Error("expected error for alpha threshold")
	}
	if _, err := NewConverter(&fakeDecoder{}, Options{Defaults: &models.Settings{Transparent: models.StringPtr("0x12")}}); err == nil {
		t.Error("expected error for bad default transparent color")
	}
	if _, err := NewConverter(&fakeDecoder{}, Options{Publish: &models.PublishJob{Type: "ftp"}}); err == nil {
		t.Error("expected error for unknown publish backend")
	}
}

func TestPublishLocal(t *testing.T) {
	dir := t.TempDir()
	input := writeWebP(t, dir, "pub.webp", webptest.Static(2, 2))
	published := t.TempDir()
	conv, err := NewConverter(&fakeDecoder{static: []byte("png bytes")}, Options{
		WorkspaceRoot: t.TempDir(),
		Publish:       &models.PublishJob{Type: "local", Credentials: map[string]string{"baseDir": published}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := conv.Convert(context.Background(), models.ConversionJob{Input: input}); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(published, "pub.png"))
	if err != nil || string(got) != "png bytes" {
		t.Errorf("published copy = %q, %v", got, err)
	}
}

func failingRemoval() workspace.Options {
	return workspace.Options{
		Attempts:   2,
		RetryDelay: time.Millisecond,
		RemoveAll:  func(string) error { return errors.New("device or resource busy") },
	}
}

func TestCleanupFailureKeepsJobResult(t *testing.T) {
	dir := t.TempDir()
	input := writeWebP(t, dir, "a.webp", webptest.Animated(4, 4, []int{100, 150}, 3))
	conv, hist, _ := newConverterWithWorkspace(t, &fakeDecoder{colors: []color.NRGBA{red, green}}, 5*time.Second, failingRemoval())

	out, err := conv.Convert(context.Background(), models.ConversionJob{Input: input})
	if err != nil {
		t.Fatalf("cleanup failure replaced a successful result: %v", err)
	}
	if want := filepath.Join(dir, "a.gif"); out != want {
		t.Errorf("output = %s, want %s", out, want)
	}
	g := readGIF(t, out)
	if len(g.Image) != 2 || !reflect.DeepEqual(delaysMs(g), []int{100, 150}) || g.LoopCount != 3 {
		t.Errorf("frames = %d, delays = %v, loop = %d", len(g.Image), delaysMs(g), g.LoopCount)
	}
	if len(hist.successes) != 1 || len(hist.failures) != 0 {
		t.Errorf("history = %+v", hist)
	}

	stuck := writeWebP(t, dir, "stuck.webp", webptest.Animated(2, 2, []int{10, 10, 10}, 0))
	conv, _, _ = newConverterWithWorkspace(t, &fakeDecoder{colors: []color.NRGBA{red}, hang: true}, 100*time.Millisecond, failingRemoval())
	_, err = conv.Convert(context.Background(), models.ConversionJob{Input: stuck})
	var te *models.SynchronizationTimeoutError
	if !errors.As(err, &te) || te.Expected != 3 || te.Observed != 1 {
		t.Fatalf("expected the timeout to survive a failed cleanup, got %v", err)
	}
	var cw *models.CleanupWarning
	if errors.As(err, &cw) {
		t.Error("cleanup warning leaked into the job error")
	}
}

func TestWorkspaceRemovedAfterDecoderExits(t *testing.T) {
	dir := t.TempDir()
	input := writeWebP(t, dir, "slow.webp", webptest.Animated(2, 2, []int{10, 10}, 0))
	dec := &fakeDecoder{colors: []color.NRGBA{red}, hang: true, exitDelay: 40 * time.Millisecond}

	var mu sync.Mutex
	var removedAt time.Time
	opts := workspace.Options{Attempts: 1, RemoveAll: func(path string) error {
		mu.Lock()
		removedAt = time.Now()
		mu.Unlock()
		return os.RemoveAll(path)
	}}
	conv, _, root := newConverterWithWorkspace(t, dec, 50*time.Millisecond, opts)

	if _, err := conv.Convert(context.Background(), models.ConversionJob{Input: input}); models.ErrorKind(err) != "sync_timeout" {
		t.Fatalf("expected sync timeout, got %v", err)
	}
	dec.mu.Lock()
	exitedAt := dec.exitedAt
	dec.mu.Unlock()
	mu.Lock()
	defer mu.Unlock()
	if exitedAt.IsZero() || removedAt.Before(exitedAt) {
		t.Errorf("workspace removed at %v, decoder exited at %v", removedAt, exitedAt)
	}
	assertNoWorkspace(t, root, input)
}

func TestCorruptFrameRemovesPartialOutput(t *testing.T) {
	dir := t.TempDir()
	input := writeWebP(t, dir, "bad.webp", webptest.Animated(3, 3, []int{20, 20, 20}, 0))
	dec := &fakeDecoder{colors: []color.NRGBA{red, green, blue}, corrupt: map[int]bool{2: true}}
	conv, hist, root := newTestConverter(t, dec, 5*time.Second)

	_, err := conv.Convert(context.Background(), models.ConversionJob{Input: input})
	var pe *models.ExternalProcessError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ExternalProcessError for an unreadable frame, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "bad.gif")); !os.IsNotExist(err) {
		t.Error("partial gif left behind")
	}
	assertNoWorkspace(t, root, input)
	if !reflect.DeepEqual(hist.failures, []string{"external_process"}) {
		t.Errorf("failure kinds = %v", hist.failures)
	}
}

func TestOutputWriteFailure(t *testing.T) {
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("/dev/full not available")
	}
	dir := t.TempDir()
	anim := writeWebP(t, dir, "anim.webp", webptest.Animated(4, 4, []int{50, 50}, 0))
	still := writeWebP(t, dir, "still.webp", webptest.Static(2, 2))
	dec := &fakeDecoder{colors: []color.NRGBA{red, blue}, static: webptest.FramePNG(2, 2, green)}
	conv, hist, root := newTestConverter(t, dec, 5*time.Second)

	for _, tc := range []struct{ input, output string }{
		{anim, filepath.Join(dir, "full.gif")},
		{still, filepath.Join(dir, "full.png")},
	} {
		if err := os.Symlink("/dev/full", tc.output); err != nil {
			t.Skipf("symlink: %v", err)
		}
		_, err := conv.Convert(context.Background(), models.ConversionJob{Input: tc.input, Output: tc.output})
		var ee *models.EncodingError
		if !errors.As(err, &ee) || ee.Path != tc.output {
			t.Errorf("%s: expected EncodingError, got %v", tc.output, err)
		}
		if _, err := os.Lstat(tc.output); !os.IsNotExist(err) {
			t.Errorf("%s: failed output not removed", tc.output)
		}
	}
	assertNoWorkspace(t, root, anim)

	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := conv.Convert(context.Background(), models.ConversionJob{Input: still, Output: filepath.Join(blocker, "out.png")})
	if models.ErrorKind(err) != "encoding" {
		t.Errorf("output under a regular file: got %v", err)
	}
	if !reflect.DeepEqual(hist.failures, []string{"encoding", "encoding", "encoding"}) {
		t.Errorf("failure kinds = %v", hist.failures)
	}
}
