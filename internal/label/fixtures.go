// Package label turns directories of captcha images into training data. It
// batch-labels unlabeled captures through recognizer consensus and scores
// recognizers against already-labeled fixtures.
package label

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/yxzhu/wubiq/internal/model"
)

var digitRun = regexp.MustCompile(`\d{4}`)

// imageExts are the fixture formats accepted by ListFixtures. The live
// server serves BMP; archived corpora are usually converted to PNG.
var imageExts = map[string]bool{
	".bmp": true,
	".png": true,
	".gif": true,
	".jpg": true,
}

// ExtractLabel returns the ground-truth digits encoded in a fixture
// filename: the last 4-digit run of the stem, e.g. "captcha_20_4607.png"
// -> "4607". Empty when the name carries no label.
func ExtractLabel(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	runs := digitRun.FindAllString(stem, -1)
	if len(runs) == 0 {
		return ""
	}
	return runs[len(runs)-1]
}

// ListFixtures returns the captcha images directly under dir, sorted by
// name, with labels extracted from filenames. Image bytes are not loaded;
// callers read them when needed.
func ListFixtures(dir string) ([]model.CaptchaImage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read fixture dir: %w", err)
	}

	var out []model.CaptchaImage
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		path := filepath.Join(dir, e.Name())
		out = append(out, model.CaptchaImage{
			Path:  path,
			Label: ExtractLabel(path),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}
