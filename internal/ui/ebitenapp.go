package ui

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"time"

	"github.com/dmgcore/gbcore/internal/gameboy"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

// App is the ebiten host loop: keyboard-to-joypad mapping, frame pacing
// decoupled from ebiten's own tick rate, and rendering the core's
// framebuffer to the window.
type App struct {
	cfg Config
	gb  *gameboy.GameBoy
	tex *ebiten.Image

	paused bool
	fast   bool

	// timing
	lastTime time.Time
	frameAcc float64 // accumulated fractional frames

	// quicksave slot (F5/F9), written next to the configured state path
	statePath string

	toastMsg   string
	toastUntil time.Time
}

// NewApp wraps gb in an ebiten game loop. statePath, if non-empty, is the
// file used by the F5/F9 quicksave/quickload keys.
func NewApp(cfg Config, gb *gameboy.GameBoy, statePath string) *App {
	cfg.Defaults()
	ebiten.SetWindowTitle(cfg.Title)
	ebiten.SetWindowSize(gameboy.ScreenW*cfg.Scale, gameboy.ScreenH*cfg.Scale)
	return &App{cfg: cfg, gb: gb, statePath: statePath, lastTime: time.Now()}
}

func (a *App) Run() error { return ebiten.RunGame(a) }

func (a *App) Update() error {
	var btn gameboy.Buttons
	if ebiten.IsKeyPressed(ebiten.KeyRight) {
		btn.Right = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyLeft) {
		btn.Left = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyUp) {
		btn.Up = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyDown) {
		btn.Down = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyZ) {
		btn.A = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyX) {
		btn.B = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyEnter) {
		btn.Start = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyShiftRight) {
		btn.Select = true
	}
	a.gb.SetButtons(btn)

	// Pause toggle (P)
	if inpututil.IsKeyJustPressed(ebiten.KeyP) {
		a.paused = !a.paused
	}
	// Fast-forward (Tab)
	a.fast = ebiten.IsKeyPressed(ebiten.KeyTab)
	// Reset (R)
	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		a.gb.ResetPostBoot()
	}
	// Frame-step when paused (N)
	if a.paused && inpututil.IsKeyJustPressed(ebiten.KeyN) {
		a.gb.RunFrame()
	}
	// Fullscreen toggle (F11)
	if inpututil.IsKeyJustPressed(ebiten.KeyF11) {
		ebiten.SetFullscreen(!ebiten.IsFullscreen())
	}
	// Quicksave/quickload (F5/F9)
	if inpututil.IsKeyJustPressed(ebiten.KeyF5) {
		if err := a.saveState(); err == nil {
			a.toast("State saved")
		} else {
			a.toast("Save failed: " + err.Error())
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF9) {
		if err := a.loadState(); err == nil {
			a.toast("State loaded")
		} else {
			a.toast("Load failed: " + err.Error())
		}
	}
	// Screenshot (F12)
	if inpututil.IsKeyJustPressed(ebiten.KeyF12) {
		if err := a.saveScreenshot(); err != nil {
			a.toast("Screenshot failed: " + err.Error())
		}
	}

	// Emulation pacing: run at ~59.7275 FPS using a time accumulator,
	// decoupled from ebiten's own ~60Hz tick.
	if a.paused {
		a.lastTime = time.Now()
		return nil
	}
	now := time.Now()
	dt := now.Sub(a.lastTime).Seconds()
	if dt < 0 {
		dt = 0
	}
	a.lastTime = now
	const gbFPS = float64(gameboy.CPUHz) / 70224.0 // ~59.7275
	speed := 1.0
	if a.fast {
		speed = 4.0
	}
	a.frameAcc += dt * gbFPS * speed
	steps := 0
	for a.frameAcc >= 1.0 && steps < 10 { // cap to avoid spiral of death
		a.gb.RunFrame()
		a.frameAcc -= 1.0
		steps++
	}
	return nil
}

func (a *App) Draw(screen *ebiten.Image) {
	if a.tex == nil {
		a.tex = ebiten.NewImage(gameboy.ScreenW, gameboy.ScreenH)
	}
	a.tex.WritePixels(a.gb.Framebuffer())
	screen.DrawImage(a.tex, nil)

	if a.toastMsg != "" && time.Now().Before(a.toastUntil) {
		ebitenutil.DebugPrintAt(screen, a.toastMsg, 4, 4)
	}
}

func (a *App) Layout(outW, outH int) (int, int) { return gameboy.ScreenW, gameboy.ScreenH }

func (a *App) toast(msg string) {
	a.toastMsg = msg
	a.toastUntil = time.Now().Add(2 * time.Second)
}

func (a *App) saveState() error {
	if a.statePath == "" {
		return fmt.Errorf("no state path configured")
	}
	return os.WriteFile(a.statePath, a.gb.SaveState(), 0644)
}

func (a *App) loadState() error {
	if a.statePath == "" {
		return fmt.Errorf("no state path configured")
	}
	data, err := os.ReadFile(a.statePath)
	if err != nil {
		return err
	}
	a.gb.LoadState(data)
	return nil
}

func (a *App) saveScreenshot() error {
	fb := a.gb.Framebuffer()
	img := &image.RGBA{
		Pix:    make([]byte, len(fb)),
		Stride: 4 * gameboy.ScreenW,
		Rect:   image.Rect(0, 0, gameboy.ScreenW, gameboy.ScreenH),
	}
	copy(img.Pix, fb)
	ts := time.Now().Format("20060102_150405")
	f, err := os.Create(fmt.Sprintf("screenshot_%s.png", ts))
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
