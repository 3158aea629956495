package narrative

import (
	"crypto/sha256"
	"fmt"
	"strconv"

	"github.com/cbergoon/merkletree"
	"github.com/multiformats/go-multihash"
)

// lineContent is a merkle leaf: one fixed narrative line at its position.
type lineContent struct {
	index int
	text  string
}

// CalculateHash implements merkletree.Content
func (c lineContent) CalculateHash() ([]byte, error) {
	h := sha256.New()
	if _, err := h.Write([]byte(strconv.Itoa(c.index) + ":" + c.text)); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// Equals implements merkletree.Content
func (c lineContent) Equals(other merkletree.Content) (bool, error) {
	o, ok := other.(lineContent)
	if !ok {
		return false, fmt.Errorf("type mismatch")
	}
	return c.index == o.index && c.text == o.text, nil
}

// FixedLines returns every narrative line that does not depend on the
// request. The request JSON is represented only by its leading label.
func FixedLines() []string {
	lines := []string{header, createLine, monitorLine, scenario}
	lines = append(lines, steps...)
	lines = append(lines, "")
	return append(lines, warning...)
}

func buildTree(lines []string) (*merkletree.MerkleTree, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("cannot build tree from empty narrative")
	}

	contents := make([]merkletree.Content, 0, len(lines))
	for i, line := range lines {
		contents = append(contents, lineContent{index: i, text: line})
	}

	tree, err := merkletree.NewTree(contents)
	if err != nil {
		return nil, fmt.Errorf("failed to build Merkle tree: %w", err)
	}
	return tree, nil
}

// fingerprintOf encodes the merkle root of lines as a base58 SHA2-256 multihash.
func fingerprintOf(lines []string) (string, error) {
	tree, err := buildTree(lines)
	if err != nil {
		return "", err
	}

	mh, err := multihash.Encode(tree.MerkleRoot(), multihash.SHA2_256)
	if err != nil {
		return "", fmt.Errorf("failed to encode multihash: %w", err)
	}
	return multihash.Multihash(mh).B58String(), nil
}

// Fingerprint identifies the fixed narrative. Two binaries print the same
// steps in the same order if and only if their fingerprints match.
func Fingerprint() (string, error) {
	return fingerprintOf(FixedLines())
}

// VerifyLine reports whether text is the fixed narrative line at index.
func VerifyLine(index int, text string) (bool, error) {
	tree, err := buildTree(FixedLines())
	if err != nil {
		return false, err
	}

	verified, err := tree.VerifyContent(lineContent{index: index, text: text})
	if err != nil {
		return false, fmt.Errorf("failed to verify content: %w", err)
	}
	return verified, nil
}
