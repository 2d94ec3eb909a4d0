package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/songzhibin97/sentinel/types"
)

// DefaultThreshold is the probability at or above which a transaction is
// labelled fraudulent.
const DefaultThreshold = 0.5

// treeNode mirrors a node of an XGBoost JSON model dump.
type treeNode struct {
	NodeID         int        `json:"nodeid"`
	Split          string     `json:"split,omitempty"`
	SplitCondition float64    `json:"split_condition,omitempty"`
	Yes            int        `json:"yes,omitempty"`
	No             int        `json:"no,omitempty"`
	Missing        int        `json:"missing,omitempty"`
	Leaf           *float64   `json:"leaf,omitempty"`
	Children       []treeNode `json:"children,omitempty"`
}

type boosterFile struct {
	Objective string     `json:"objective"`
	BaseScore *float64   `json:"base_score"`
	Trees     []treeNode `json:"trees"`
}

// compiled is a flattened tree node.
type compiled struct {
	feature   int
	threshold float64
	yes       int
	no        int
	missing   int
	leaf      float64
	isLeaf    bool
}

type tree []compiled

// Booster is a gradient-boosted tree ensemble for binary classification.
type Booster struct {
	trees     []tree
	baseScore float64
	threshold float64
}

// LoadBooster reads an XGBoost JSON dump. The file is either an object with
// "trees" (and optionally "base_score") or the bare array produced by
// Booster.dump_model(dump_format="json").
func LoadBooster(path string, threshold float64) (*Booster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactMissing, err)
	}
	b, err := ParseBooster(data, threshold)
	if err != nil {
		return nil, fmt.Errorf("%w: model %s: %v", ErrArtifactInvalid, path, err)
	}
	return b, nil
}

// ParseBooster decodes a booster from its JSON representation.
func ParseBooster(data []byte, threshold float64) (*Booster, error) {
	var f boosterFile
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &f.Trees); err != nil {
			return nil, fmt.Errorf("decode trees: %v", err)
		}
	} else if err := json.Unmarshal(trimmed, &f); err != nil {
		return nil, fmt.Errorf("decode model: %v", err)
	}

	if f.Objective != "" && f.Objective != "binary:logistic" {
		return nil, fmt.Errorf("unsupported objective %q", f.Objective)
	}
	if len(f.Trees) == 0 {
		return nil, fmt.Errorf("model has no trees")
	}
	if threshold <= 0 || threshold >= 1 {
		return nil, fmt.Errorf("threshold %v must be in (0, 1)", threshold)
	}

	baseScore := 0.5
	if f.BaseScore != nil {
		baseScore = *f.BaseScore
	}
	if baseScore <= 0 || baseScore >= 1 {
		return nil, fmt.Errorf("base_score %v must be in (0, 1)", baseScore)
	}

	b := &Booster{
		trees:     make([]tree, 0, len(f.Trees)),
		baseScore: baseScore,
		threshold: threshold,
	}
	for i, root := range f.Trees {
		t, err := compileTree(root)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %v", i, err)
		}
		b.trees = append(b.trees, t)
	}
	return b, nil
}

func compileTree(root treeNode) (tree, error) {
	nodes := make(map[int]treeNode)
	var walk func(n treeNode) error
	walk = func(n treeNode) error {
		if _, dup := nodes[n.NodeID]; dup {
			return fmt.Errorf("duplicate node %d", n.NodeID)
		}
		nodes[n.NodeID] = n
		for _, c := range n.Children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}

	t := make(tree, len(nodes))
	for id, n := range nodes {
		if id < 0 || id >= len(nodes) {
			return nil, fmt.Errorf("node id %d out of range", id)
		}
		if n.Leaf != nil {
			t[id] = compiled{leaf: *n.Leaf, isLeaf: true}
			continue
		}
		feature, err := featureIndex(n.Split)
		if err != nil {
			return nil, fmt.Errorf("node %d: %v", id, err)
		}
		for _, child := range []int{n.Yes, n.No, n.Missing} {
			if _, ok := nodes[child]; !ok || child == id {
				return nil, fmt.Errorf("node %d: invalid child %d", id, child)
			}
		}
		t[id] = compiled{
			feature:   feature,
			threshold: n.SplitCondition,
			yes:       n.Yes,
			no:        n.No,
			missing:   n.Missing,
		}
	}
	if t[0].isLeaf && len(t) > 1 {
		return nil, fmt.Errorf("root is a leaf but tree has %d nodes", len(t))
	}
	return t, nil
}

// featureIndex resolves "f12" style or column-name splits.
func featureIndex(split string) (int, error) {
	if strings.HasPrefix(split, "f") {
		if i, err := strconv.Atoi(split[1:]); err == nil {
			if i < 0 || i >= types.FeatureCount {
				return 0, fmt.Errorf("feature index %d out of range", i)
			}
			return i, nil
		}
	}
	if i, ok := types.FeatureIndex(split); ok {
		return i, nil
	}
	return 0, fmt.Errorf("unknown split feature %q", split)
}

func (t tree) leaf(x []float64) float64 {
	i := 0
	// Every walk visits at most len(t) nodes; the bound guards against cycles.
	for steps := 0; steps <= len(t); steps++ {
		n := t[i]
		if n.isLeaf {
			return n.leaf
		}
		v := x[n.feature]
		switch {
		case math.IsNaN(v):
			i = n.missing
		case v < n.threshold:
			i = n.yes
		default:
			i = n.no
		}
	}
	return 0
}

// Margin returns the raw ensemble score before the logistic transform.
func (b *Booster) Margin(features []float64) (float64, error) {
	if len(features) != types.FeatureCount {
		return 0, fmt.Errorf("model expects %d features, got %d", types.FeatureCount, len(features))
	}
	margin := math.Log(b.baseScore / (1 - b.baseScore))
	for _, t := range b.trees {
		margin += t.leaf(features)
	}
	return margin, nil
}

// Probability returns the fraud probability for a scaled feature vector.
func (b *Booster) Probability(features []float64) (float64, error) {
	margin, err := b.Margin(features)
	if err != nil {
		return 0, err
	}
	return 1 / (1 + math.Exp(-margin)), nil
}

// Predict returns the class label, 1 for fraud and 0 otherwise.
func (b *Booster) Predict(features []float64) (int, error) {
	p, err := b.Probability(features)
	if err != nil {
		return 0, err
	}
	if p >= b.threshold {
		return 1, nil
	}
	return 0, nil
}

// Trees returns the number of trees in the ensemble.
func (b *Booster) Trees() int {
	return len(b.trees)
}
