package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bambu-slicer-advisor/internal/analysis"
	"bambu-slicer-advisor/internal/config"
	apperrors "bambu-slicer-advisor/internal/errors"
	"bambu-slicer-advisor/internal/ingest"
	"bambu-slicer-advisor/internal/models"

	"github.com/stretchr/testify/require"
)

var testPNG = []byte{
	0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A,
	0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4, 0x89,
}

type fakeAnalyzer struct {
	mu       sync.Mutex
	calls    int
	requests []analysis.Request
	result   *models.AnalysisResult
	err      error
	release  chan struct{}
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, req analysis.Request) (*models.AnalysisResult, error) {
	f.mu.Lock()
	f.calls++
	f.requests = append(f.requests, req)
	release := f.release
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.result, f.err
}

func (f *fakeAnalyzer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func sampleResult() *models.AnalysisResult {
	return &models.AnalysisResult{
		IsFailedPrint:      true,
		ModelName:          "支架",
		MaterialSuggestion: "PETG",
		Summary:            "层间分离",
		Categories: []models.SettingCategory{{
			CategoryName: "冷却",
			Settings:     []models.BambuSetting{{Name: "部件冷却风扇", Value: "30%", Reason: "PETG 需要较弱冷却"}},
		}},
		Warnings: []string{"强度下降"},
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Analysis: config.AnalysisConfig{
			DefaultTemperature: 0.4,
			DefaultFilament:    "PLA",
			Filaments:          models.DefaultFilaments,
			StrictFilament:     true,
		},
		Upload:   config.UploadConfig{MaxBytes: ingest.DefaultMaxBytes},
		Sessions: config.SessionConfig{IdleTTL: 30 * time.Minute},
	}
}

func newTestService(t *testing.T, cfg *config.Config, analyzer *fakeAnalyzer) *AnalyzeService {
	t.Helper()
	builder, err := analysis.NewBuilder(nil, "")
	require.NoError(t, err)
	svc, err := NewAnalyzeService(cfg, ingest.New(cfg.Upload.MaxBytes), builder, analyzer, NewSessionRegistry())
	require.NoError(t, err)
	return svc
}

func float32Ptr(v float32) *float32 { return &v }

func TestNewAnalyzeService_RequiresDependencies(t *testing.T) {
	builder, err := analysis.NewBuilder(nil, "")
	require.NoError(t, err)
	cfg := testConfig()

	_, err = NewAnalyzeService(nil, ingest.New(0), builder, &fakeAnalyzer{}, NewSessionRegistry())
	require.Error(t, err)
	_, err = NewAnalyzeService(cfg, nil, builder, &fakeAnalyzer{}, NewSessionRegistry())
	require.Error(t, err)
	_, err = NewAnalyzeService(cfg, ingest.New(0), nil, &fakeAnalyzer{}, NewSessionRegistry())
	require.Error(t, err)
	_, err = NewAnalyzeService(cfg, ingest.New(0), builder, nil, NewSessionRegistry())
	require.Error(t, err)
	_, err = NewAnalyzeService(cfg, ingest.New(0), builder, &fakeAnalyzer{}, nil)
	require.Error(t, err)
}

func TestSubmitImage_UsesDefaultTemperature(t *testing.T) {
	analyzer := &fakeAnalyzer{result: sampleResult()}
	svc := newTestService(t, testConfig(), analyzer)

	result, err := svc.SubmitImage(context.Background(), testPNG, "image/png", "PETG", AnalysisSettings{})
	require.NoError(t, err)
	require.Equal(t, sampleResult(), result)
	require.Equal(t, 1, analyzer.callCount())

	req := analyzer.requests[0]
	require.InDelta(t, 0.4, req.Temperature, 1e-6)
	require.Equal(t, "PETG", req.Filament)
	require.Equal(t, "image/png", req.Image.MIMEType)
	require.Contains(t, req.Instruction, "PETG")
	require.NotNil(t, req.Schema)
}

func TestSubmitImage_ExplicitTemperature(t *testing.T) {
	analyzer := &fakeAnalyzer{result: sampleResult()}
	svc := newTestService(t, testConfig(), analyzer)

	_, err := svc.SubmitImage(context.Background(), testPNG, "image/png", "PLA", AnalysisSettings{Temperature: float32Ptr(0)})
	require.NoError(t, err)
	require.InDelta(t, 0.0, analyzer.requests[0].Temperature, 1e-6)
}

func TestSubmitImage_RejectsBeforeCallingModel(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		mime     string
		filament string
		settings AnalysisSettings
		wantType apperrors.ErrorType
	}{
		{"pdf", []byte("%PDF-1.4\n"), "application/pdf", "PLA", AnalysisSettings{}, apperrors.ErrorTypeUnsupportedMediaType},
		{"text", []byte("hello"), "text/plain", "PLA", AnalysisSettings{}, apperrors.ErrorTypeUnsupportedMediaType},
		{"empty", nil, "image/png", "PLA", AnalysisSettings{}, apperrors.ErrorTypeUnsupportedMediaType},
		{"temperature too high", testPNG, "image/png", "PLA", AnalysisSettings{Temperature: float32Ptr(1.5)}, apperrors.ErrorTypeValidation},
		{"temperature negative", testPNG, "image/png", "PLA", AnalysisSettings{Temperature: float32Ptr(-0.1)}, apperrors.ErrorTypeValidation},
		{"blank filament", testPNG, "image/png", "  ", AnalysisSettings{}, apperrors.ErrorTypeValidation},
		{"unknown filament", testPNG, "image/png", "Wood", AnalysisSettings{}, apperrors.ErrorTypeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analyzer := &fakeAnalyzer{result: sampleResult()}
			svc := newTestService(t, testConfig(), analyzer)

			result, err := svc.SubmitImage(context.Background(), tt.data, tt.mime, tt.filament, tt.settings)
			require.Nil(t, result)
			require.True(t, apperrors.IsType(err, tt.wantType), "got %v", err)
			require.Equal(t, 0, analyzer.callCount())
		})
	}
}

func TestSubmitImage_ModelErrorsSurfaceUnchanged(t *testing.T) {
	cause := apperrors.NewMalformedResponseError("bad json", errors.New("unexpected EOF"))
	analyzer := &fakeAnalyzer{err: cause}
	svc := newTestService(t, testConfig(), analyzer)

	result, err := svc.SubmitImage(context.Background(), testPNG, "", "PLA", AnalysisSettings{})
	require.Nil(t, result)
	require.Same(t, cause, err)
}

func TestResolveFilament(t *testing.T) {
	svc := newTestService(t, testConfig(), &fakeAnalyzer{})

	got, err := svc.ResolveFilament("petg")
	require.NoError(t, err)
	require.Equal(t, "PETG", got)

	got, err = svc.ResolveFilament(" pla matte ")
	require.NoError(t, err)
	require.Equal(t, "PLA Matte", got)

	_, err = svc.ResolveFilament("PTEG")
	require.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	require.Contains(t, err.Error(), "'PETG'")

	cfg := testConfig()
	cfg.Analysis.StrictFilament = false
	loose := newTestService(t, cfg, &fakeAnalyzer{})
	got, err = loose.ResolveFilament("Silk PLA+")
	require.NoError(t, err)
	require.Equal(t, "Silk PLA+", got)
}

func TestRunSession_RecordsSuccessAndError(t *testing.T) {
	analyzer := &fakeAnalyzer{result: sampleResult()}
	svc := newTestService(t, testConfig(), analyzer)
	img, err := svc.Ingestor().FromBytes(testPNG, "image/png")
	require.NoError(t, err)

	result, err := svc.RunSession(context.Background(), "s1", *img, "PETG", AnalysisSettings{})
	require.NoError(t, err)
	require.NotNil(t, result)

	snap := svc.Sessions().Snapshot("s1")
	require.Equal(t, models.StatusSuccess, snap.Status)
	require.Equal(t, result, snap.Result)

	analyzer.result, analyzer.err = nil, apperrors.NewEmptyResponseError("no content", nil)
	_, err = svc.RunSession(context.Background(), "s1", *img, "PETG", AnalysisSettings{})
	require.True(t, apperrors.IsType(err, apperrors.ErrorTypeEmptyResponse))

	snap = svc.Sessions().Snapshot("s1")
	require.Equal(t, models.StatusError, snap.Status)
	require.Nil(t, snap.Result)
	require.Equal(t, apperrors.ErrorTypeEmptyResponse, snap.ErrorType)
}

func TestRunSession_InvalidInputLeavesSessionUntouched(t *testing.T) {
	analyzer := &fakeAnalyzer{result: sampleResult()}
	svc := newTestService(t, testConfig(), analyzer)
	img, err := svc.Ingestor().FromBytes(testPNG, "image/png")
	require.NoError(t, err)

	_, err = svc.RunSession(context.Background(), "s1", *img, "PETG", AnalysisSettings{})
	require.NoError(t, err)
	before := svc.Sessions().Snapshot("s1")
	require.Equal(t, models.StatusSuccess, before.Status)

	tests := []struct {
		name     string
		filament string
		settings AnalysisSettings
	}{
		{"temperature too high", "PETG", AnalysisSettings{Temperature: float32Ptr(1.5)}},
		{"temperature negative", "PETG", AnalysisSettings{Temperature: float32Ptr(-0.2)}},
		{"unknown filament", "Wood", AnalysisSettings{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := svc.RunSession(context.Background(), "s1", *img, tt.filament, tt.settings)
			require.Nil(t, result)
			require.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation), "got %v", err)

			after := svc.Sessions().Snapshot("s1")
			require.Equal(t, models.StatusSuccess, after.Status)
			require.Equal(t, before.Sequence, after.Sequence)
			require.Equal(t, before.Result, after.Result)
			require.Equal(t, 1, analyzer.callCount())
		})
	}
}

func TestRunSession_SingleFlightAndStaleDiscard(t *testing.T) {
	analyzer := &fakeAnalyzer{result: sampleResult(), release: make(chan struct{})}
	svc := newTestService(t, testConfig(), analyzer)
	img, err := svc.Ingestor().FromBytes(testPNG, "image/png")
	require.NoError(t, err)

	type outcome struct {
		result *models.AnalysisResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := svc.RunSession(context.Background(), "s1", *img, "PLA", AnalysisSettings{})
		done <- outcome{r, err}
	}()

	require.Eventually(t, func() bool { return analyzer.callCount() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, models.StatusAnalyzing, svc.Sessions().Snapshot("s1").Status)

	// 同一 session 的第二次提交被拒絕
	_, err = svc.RunSession(context.Background(), "s1", *img, "PLA", AnalysisSettings{})
	require.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))
	require.Equal(t, 1, analyzer.callCount())

	// 其他 session 不受影響
	require.Equal(t, models.StatusIdle, svc.Sessions().Snapshot("s2").Status)

	svc.Sessions().Reset("s1")
	close(analyzer.release)

	out := <-done
	require.Nil(t, out.result)
	require.True(t, apperrors.IsType(out.err, apperrors.ErrorTypeConflict))

	snap := svc.Sessions().Snapshot("s1")
	require.Equal(t, models.StatusIdle, snap.Status)
	require.Nil(t, snap.Result)
}
