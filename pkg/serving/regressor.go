package serving

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Regressor predicts one value from a scaled feature row.
type Regressor interface {
	Predict(row []float64) (float64, error)
}

// modelArtifact is the JSON envelope of a trained regressor.
type modelArtifact struct {
	Type string `json:"type"`

	// gbtree
	BaseScore float64     `json:"base_score"`
	Trees     []*TreeNode `json:"trees"`

	// linear
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
}

// LoadRegressor decodes a "gbtree" or "linear" model artifact.
func LoadRegressor(r io.Reader) (Regressor, error) {
	var a modelArtifact
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	switch a.Type {
	case "gbtree", "":
		return newGBTree(a.BaseScore, a.Trees)
	case "linear":
		if len(a.Coefficients) != len(FeatureOrder) {
			return nil, fmt.Errorf("linear model has %d coefficients, want %d", len(a.Coefficients), len(FeatureOrder))
		}
		return &Linear{Coefficients: a.Coefficients, Intercept: a.Intercept}, nil
	}
	return nil, fmt.Errorf("unsupported model type %q", a.Type)
}

// Linear is y = intercept + sum(coef_i * x_i).
type Linear struct {
	Coefficients []float64
	Intercept    float64
}

func (l *Linear) Predict(row []float64) (float64, error) {
	if len(row) != len(l.Coefficients) {
		return 0, fmt.Errorf("row has %d features, model expects %d", len(row), len(l.Coefficients))
	}
	y := l.Intercept
	for i, c := range l.Coefficients {
		y += c * row[i]
	}
	return y, nil
}

// TreeNode is one node of an XGBoost JSON tree dump. Leaves carry Leaf;
// split nodes route x < SplitCondition to Yes and missing values to Missing.
type TreeNode struct {
	NodeID         int         `json:"nodeid"`
	Split          string      `json:"split,omitempty"`
	SplitCondition float64     `json:"split_condition,omitempty"`
	Yes            int         `json:"yes,omitempty"`
	No             int         `json:"no,omitempty"`
	Missing        int         `json:"missing,omitempty"`
	Leaf           *float64    `json:"leaf,omitempty"`
	Children       []*TreeNode `json:"children,omitempty"`

	feature  int
	children map[int]*TreeNode
}

// GBTree is a gradient boosted tree ensemble: base score plus the sum of one
// leaf per tree.
type GBTree struct {
	BaseScore float64
	Trees     []*TreeNode
}

func newGBTree(baseScore float64, trees []*TreeNode) (*GBTree, error) {
	if len(trees) == 0 {
		return nil, errors.New("gbtree model has no trees")
	}
	for i, t := range trees {
		if err := t.prepare(); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return &GBTree{BaseScore: baseScore, Trees: trees}, nil
}

func (n *TreeNode) prepare() error {
	if n == nil {
		return errors.New("nil node")
	}
	if n.Leaf != nil {
		return nil
	}
	idx, err := featureIndex(n.Split)
	if err != nil {
		return fmt.Errorf("node %d: %w", n.NodeID, err)
	}
	n.feature = idx
	n.children = make(map[int]*TreeNode, len(n.Children))
	for _, c := range n.Children {
		if err := c.prepare(); err != nil {
			return err
		}
		n.children[c.NodeID] = c
	}
	for _, id := range []int{n.Yes, n.No, n.Missing} {
		if _, ok := n.children[id]; !ok {
			return fmt.Errorf("node %d references missing child %d", n.NodeID, id)
		}
	}
	return nil
}

// featureIndex accepts "f<N>" or one of FeatureOrder.
func featureIndex(split string) (int, error) {
	for i, name := range FeatureOrder {
		if split == name {
			return i, nil
		}
	}
	if rest, ok := strings.CutPrefix(split, "f"); ok {
		if i, err := strconv.Atoi(rest); err == nil && i >= 0 && i < len(FeatureOrder) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown split feature %q", split)
}

func (n *TreeNode) leafFor(row []float64) float64 {
	node := n
	for node.Leaf == nil {
		v := row[node.feature]
		switch {
		case math.IsNaN(v):
			node = node.children[node.Missing]
		case v < node.SplitCondition:
			node = node.children[node.Yes]
		default:
			node = node.children[node.No]
		}
	}
	return *node.Leaf
}

func (g *GBTree) Predict(row []float64) (float64, error) {
	if len(row) != len(FeatureOrder) {
		return 0, fmt.Errorf("row has %d features, model expects %d", len(row), len(FeatureOrder))
	}
	y := g.BaseScore
	for _, t := range g.Trees {
		y += t.leafFor(row)
	}
	return y, nil
}
