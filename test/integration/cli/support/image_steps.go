package support

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/cucumber/godog"
	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/wallsight/internal/testutil"
)

// saveImage writes img below the scenario temp dir, creating parents.
func (testCtx *TestContext) saveImage(name string, img image.Image) error {
	path := testCtx.resolvePath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	testCtx.TrackFile(path)
	return nil
}

func (testCtx *TestContext) aTexturedWallPhoto(name string, seed int) error {
	return testCtx.saveImage(name, testutil.GenerateTexturedImage(320, 240, uint64(seed))) //nolint:gosec // G115: small positive seed
}

func (testCtx *TestContext) aTexturedWallPhotoOfSize(name string, width, height, seed int) error {
	return testCtx.saveImage(name, testutil.GenerateTexturedImage(width, height, uint64(seed))) //nolint:gosec // G115: small positive seed
}

func (testCtx *TestContext) aNoiseImage(name string, seed int) error {
	return testCtx.saveImage(name, testutil.GenerateNoiseImage(320, 240, uint64(seed))) //nolint:gosec // G115: small positive seed
}

func (testCtx *TestContext) aBlankImage(name string) error {
	return testCtx.saveImage(name, testutil.CreateTestImage(200, 200, color.White))
}

func (testCtx *TestContext) aWhiteImageWithRedSquare(name string, x, y, size int) error {
	red := color.RGBA{255, 0, 0, 255}
	return testCtx.saveImage(name, testutil.CreateSquareImage(200, 200, color.White, x, y, size, red))
}

// aRotatedCopy writes src rotated by a small angle, keeping the frame size,
// as a stand-in for a second camera pose.
func (testCtx *TestContext) aRotatedCopy(dst, src string, angle float64) error {
	img, err := imaging.Open(testCtx.resolvePath(src))
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	b := img.Bounds()
	rotated := imaging.Rotate(img, angle, color.Black)
	return testCtx.saveImage(dst, imaging.CropCenter(rotated, b.Dx(), b.Dy()))
}

func (testCtx *TestContext) anEmptyDirectory(name string) error {
	path := testCtx.resolvePath(name)
	testCtx.TrackDirectory(path)
	return os.MkdirAll(path, 0o750)
}

// RegisterImageSteps registers steps that generate input images.
func (testCtx *TestContext) RegisterImageSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a textured wall photo "([^"]*)" with seed (\d+)$`, testCtx.aTexturedWallPhoto)
	sc.Step(`^a textured wall photo "([^"]*)" of (\d+)x(\d+) pixels with seed (\d+)$`, testCtx.aTexturedWallPhotoOfSize)
	sc.Step(`^a noise image "([^"]*)" with seed (\d+)$`, testCtx.aNoiseImage)
	sc.Step(`^a blank image "([^"]*)"$`, testCtx.aBlankImage)
	sc.Step(`^a white image "([^"]*)" with a red square at (\d+),(\d+) of size (\d+)$`, testCtx.aWhiteImageWithRedSquare)
	sc.Step(`^"([^"]*)" is "([^"]*)" rotated by ([0-9.]+) degrees$`, testCtx.aRotatedCopy)
	sc.Step(`^an empty directory "([^"]*)"$`, testCtx.anEmptyDirectory)
}
