package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/disentangle/internal/modules/quantum"
	"github.com/aristath/disentangle/internal/modules/rollout"
	testingpkg "github.com/aristath/disentangle/internal/testing"
)

func testReport() rollout.Report {
	tr := rollout.Trajectory{
		Qubits:        3,
		Policy:        "greedy",
		States:        [][]complex128{quantum.BasisState(3, 0)},
		Entanglements: [][]float64{{0, 0, 0}},
		Done:          true,
	}
	return rollout.Report{
		ID:        "0b0c4a7e-run",
		Kind:      rollout.KindEquivalence,
		Qubits:    3,
		Policy:    "greedy",
		Trials:    2,
		PassRate:  1,
		CreatedAt: time.Date(2026, 10, 19, 23, 30, 0, 0, time.UTC),
		Results: []rollout.TrialResult{
			{Index: 0, Passed: true, Simulator: tr},
			{Index: 1, Passed: true, Simulator: tr},
		},
	}
}

func TestArchiver_Key(t *testing.T) {
	rep := testReport()
	assert.Equal(t, "runs/3q/2026-10-19/0b0c4a7e-run.msgpack",
		NewArchiver(nil, "/runs/", zerolog.Nop()).Key(rep))
	assert.Equal(t, "3q/2026-10-19/0b0c4a7e-run.msgpack",
		NewArchiver(nil, "", zerolog.Nop()).Key(rep))

	// Dates are taken in UTC.
	rep.CreatedAt = time.Date(2026, 10, 20, 1, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	assert.Equal(t, "3q/2026-10-19/0b0c4a7e-run.msgpack",
		NewArchiver(nil, "", zerolog.Nop()).Key(rep))
}

func TestArchiver_ArchiveRun(t *testing.T) {
	up := testingpkg.NewMockUploader()
	a := NewArchiver(up, "runs", zerolog.Nop())
	rep := testReport()

	key, err := a.ArchiveRun(context.Background(), rep)
	require.NoError(t, err)
	data, ok := up.Object(key)
	require.True(t, ok)

	bundle, trajectories, err := DecodeBundle(data)
	require.NoError(t, err)
	assert.Equal(t, BundleVersion, bundle.Version)
	assert.Equal(t, rep.ID, bundle.RunID)
	assert.Equal(t, rep.Trials, bundle.Trials)
	assert.True(t, rep.CreatedAt.Equal(bundle.CreatedAt))
	require.Len(t, trajectories, 2)
	assert.Equal(t, rep.Results[0].Simulator.States, trajectories[0].States)
	assert.True(t, trajectories[1].Done)
}

func TestArchiver_UploadError(t *testing.T) {
	up := testingpkg.NewMockUploader()
	up.SetError(errors.New("bucket gone"))
	a := NewArchiver(up, "", zerolog.Nop())
	_, err := a.ArchiveRun(context.Background(), testReport())
	assert.ErrorContains(t, err, "bucket gone")
}

func TestDecodeBundle_Garbage(t *testing.T) {
	_, _, err := DecodeBundle([]byte{0xc1, 0x00})
	assert.Error(t, err)
}

func TestNewS3Uploader_RequiresBucket(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	_, err := NewS3Uploader(context.Background(), Config{})
	assert.Error(t, err)
}

func TestNewS3Uploader_CustomEndpoint(t *testing.T) {
	u, err := NewS3Uploader(context.Background(), Config{
		Bucket:          "qde",
		Region:          "eu-central-1",
		Endpoint:        "http://127.0.0.1:9000",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "qde", u.bucket)
	assert.NotNil(t, u.uploader)
}
