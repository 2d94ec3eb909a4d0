package model

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	legitTransaction = "0.0,-1.3598071336738,-0.0727811733593648,2.53634673796914,1.37815522427443,-0.338320769942518,0.462387777762292,0.23959855406126,0.0986979012610507,0.363786969611215,0.0907941719789316,-0.551599533260813,-0.617800855762348,-0.991389847235408,-0.311169353699879,1.46817697209427,-0.470400525259478,0.207971241929242,0.0257905801985591,0.403992960255733,0.251412098239705,-0.018306777944153,0.277837575558899,-0.110473910188767,0.0669280749146731,0.128539358273528,-0.189114843888824,0.133558376740387,-0.0210530534538215,149.62"
	fraudTransaction = "406.0,-2.312226542,1.951992011,-1.609850732,3.997905588,-0.522187865,-1.426545318,-2.537387306,1.391657248,-2.770089273,-2.772272145,3.202033207,-2.899907388,-0.595221881,-4.289253782,0.38972412,-1.14074718,-2.830055675,-0.016822468,0.416955705,0.126910559,0.517232371,-0.035049369,-0.465211076,-0.320401205,0.04453624,0.177839798,-0.258264956,-0.63864032,0.0"
)

func vector(t *testing.T, raw string) []float64 {
	t.Helper()
	var out []float64
	for _, tok := range strings.Split(raw, ",") {
		v, err := strconv.ParseFloat(tok, 64)
		require.NoError(t, err)
		out = append(out, v)
	}
	return out
}

func TestLoadArtifacts(t *testing.T) {
	a, err := LoadArtifacts("testdata/scaler.json", "testdata/booster.json", DefaultThreshold)
	require.NoError(t, err)
	assert.Equal(t, 2, a.Booster.Trees())

	t.Run("missing scaler", func(t *testing.T) {
		_, err := LoadArtifacts("testdata/nope.json", "testdata/booster.json", DefaultThreshold)
		assert.True(t, errors.Is(err, ErrArtifactMissing))
	})

	t.Run("missing model", func(t *testing.T) {
		_, err := LoadArtifacts("testdata/scaler.json", "testdata/nope.json", DefaultThreshold)
		assert.True(t, errors.Is(err, ErrArtifactMissing))
	})

	t.Run("invalid model", func(t *testing.T) {
		_, err := LoadArtifacts("testdata/scaler.json", "testdata/invalid.json", DefaultThreshold)
		assert.True(t, errors.Is(err, ErrArtifactInvalid))
	})

	t.Run("invalid threshold", func(t *testing.T) {
		_, err := LoadArtifacts("testdata/scaler.json", "testdata/booster.json", 1.5)
		assert.True(t, errors.Is(err, ErrArtifactInvalid))
	})
}

func TestBoosterPredict(t *testing.T) {
	a, err := LoadArtifacts("testdata/scaler.json", "testdata/booster.json", DefaultThreshold)
	require.NoError(t, err)

	scaled, err := a.Scaler.Transform(vector(t, legitTransaction))
	require.NoError(t, err)
	margin, err := a.Booster.Margin(scaled)
	require.NoError(t, err)
	assert.InDelta(t, -2.5, margin, 1e-9)
	label, err := a.Booster.Predict(scaled)
	require.NoError(t, err)
	assert.Equal(t, 0, label)

	scaled, err = a.Scaler.Transform(vector(t, fraudTransaction))
	require.NoError(t, err)
	p, err := a.Booster.Probability(scaled)
	require.NoError(t, err)
	assert.InDelta(t, 1/(1+math.Exp(-2.5)), p, 1e-9)
	label, err = a.Booster.Predict(scaled)
	require.NoError(t, err)
	assert.Equal(t, 1, label)

	_, err = a.Booster.Predict(scaled[:29])
	assert.Error(t, err)
}

func TestBoosterMissingValue(t *testing.T) {
	b, err := ParseBooster([]byte(`[
		{"nodeid": 0, "split": "Amount", "split_condition": 100, "yes": 1, "no": 2, "missing": 2,
		 "children": [{"nodeid": 1, "leaf": -1}, {"nodeid": 2, "leaf": 1}]}
	]`), DefaultThreshold)
	require.NoError(t, err)

	x := make([]float64, 30)
	x[29] = 50
	label, err := b.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, 0, label)

	x[29] = math.NaN()
	label, err = b.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, 1, label)
}

func TestParseBoosterErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"no trees", `{"trees": []}`},
		{"bad objective", `{"objective": "reg:squarederror", "trees": [{"nodeid": 0, "leaf": 1}]}`},
		{"bad base score", `{"base_score": 1, "trees": [{"nodeid": 0, "leaf": 1}]}`},
		{"unknown feature", `[{"nodeid": 0, "split": "V99", "split_condition": 1, "yes": 1, "no": 2, "missing": 1,
			"children": [{"nodeid": 1, "leaf": 1}, {"nodeid": 2, "leaf": 0}]}]`},
		{"feature out of range", `[{"nodeid": 0, "split": "f30", "split_condition": 1, "yes": 1, "no": 2, "missing": 1,
			"children": [{"nodeid": 1, "leaf": 1}, {"nodeid": 2, "leaf": 0}]}]`},
		{"dangling child", `[{"nodeid": 0, "split": "f1", "split_condition": 1, "yes": 1, "no": 5, "missing": 1,
			"children": [{"nodeid": 1, "leaf": 1}]}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBooster([]byte(tt.data), DefaultThreshold)
			assert.Error(t, err)
		})
	}
}

func TestStandardScaler(t *testing.T) {
	s := &StandardScaler{Mean: make([]float64, 30), Scale: make([]float64, 30)}
	for i := range s.Scale {
		s.Mean[i] = 1
		s.Scale[i] = 2
	}
	s.Scale[3] = 0
	require.NoError(t, s.validate())

	in := make([]float64, 30)
	for i := range in {
		in[i] = 5
	}
	out, err := s.Transform(in)
	require.NoError(t, err)
	assert.Equal(t, 2.0, out[0])
	assert.Equal(t, 4.0, out[3])
	assert.Equal(t, 5.0, in[0], "input must not be modified")

	_, err = s.Transform(in[:10])
	assert.Error(t, err)

	s.FeatureNames = []string{"Time"}
	assert.Error(t, s.validate())
}

func TestConcurrentInference(t *testing.T) {
	a, err := LoadArtifacts("testdata/scaler.json", "testdata/booster.json", DefaultThreshold)
	require.NoError(t, err)
	fraud := vector(t, fraudTransaction)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scaled, err := a.Scaler.Transform(fraud)
			assert.NoError(t, err)
			label, err := a.Booster.Predict(scaled)
			assert.NoError(t, err)
			assert.Equal(t, 1, label)
		}()
	}
	wg.Wait()
}
