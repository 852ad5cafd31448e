// Command shadecfg is a terminal configuration editor for per-device
// shading configs, structured the way cmd/termgl-client builds its
// tview application: a root App type owning the tview.Application plus
// one tview.Primitive per panel, wired together in setupUI.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/tobiasrehn/shadeflow/pkg/config"
)

// App owns the whole terminal UI: a device list on the left, an edit
// form on the right, and a status bar along the bottom.
type App struct {
	tviewApp *tview.Application
	rootFlex *tview.Flex

	deviceList *tview.List
	form       *tview.Form
	status     *tview.TextView

	dir     string
	paths   []string
	current *config.Config
}

// NewApp discovers every *.json file under dir and builds the UI.
func NewApp(dir string) (*App, error) {
	a := &App{dir: dir}
	if err := a.scanDevices(); err != nil {
		return nil, err
	}
	a.setupUI()
	return a, nil
}

func (a *App) scanDevices() error {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return fmt.Errorf("read config dir: %w", err)
	}

	a.paths = a.paths[:0]
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		a.paths = append(a.paths, filepath.Join(a.dir, e.Name()))
	}
	sort.Strings(a.paths)
	return nil
}

func (a *App) setupUI() {
	a.tviewApp = tview.NewApplication()

	a.deviceList = tview.NewList().ShowSecondaryText(false)
	a.deviceList.SetBorder(true).SetTitle(" Devices ")
	for _, p := range a.paths {
		path := p
		a.deviceList.AddItem(filepath.Base(p), "", 0, func() { a.loadDevice(path) })
	}

	a.form = tview.NewForm()
	a.form.SetBorder(true).SetTitle(" Edit ")

	a.status = tview.NewTextView().SetDynamicColors(true)
	a.status.SetBorder(true).SetTitle(" Status ")
	a.status.SetText("[yellow]select a device, edit fields, press Save[-]")

	body := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(a.deviceList, 0, 1, true).
		AddItem(a.form, 0, 2, false)

	a.rootFlex = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(body, 0, 5, true).
		AddItem(a.status, 0, 1, false)

	a.tviewApp.SetRoot(a.rootFlex, true)
	a.tviewApp.SetInputCapture(a.handleKeyboard)

	if len(a.paths) > 0 {
		a.loadDevice(a.paths[0])
	}
}

func (a *App) handleKeyboard(event *tcell.EventKey) *tcell.EventKey {
	if event.Key() == tcell.KeyCtrlC {
		a.tviewApp.Stop()
		return nil
	}
	return event
}

// loadDevice reads path and rebuilds the edit form around it.
func (a *App) loadDevice(path string) {
	cfg, err := config.Load(path)
	if err != nil {
		a.setStatus(fmt.Sprintf("[red]failed to load %s: %v[-]", path, err))
		return
	}
	a.current = cfg

	a.form.Clear(true)
	a.form.AddInputField("Name", cfg.Name, 30, nil, func(v string) { cfg.Name = v })
	a.form.AddDropDown("Variant", []string{string(config.VariantBlinds), string(config.VariantShutter)}, variantIndex(cfg.Variant), func(v string, _ int) {
		cfg.Variant = config.Variant(v)
	})
	a.form.AddInputField("Facade angle", strconv.Itoa(cfg.Facade.FacadeAngle), 10, nil, intSetter(&cfg.Facade.FacadeAngle))
	a.form.AddInputField("Min elevation", strconv.Itoa(cfg.Facade.MinElevation), 10, nil, intSetter(&cfg.Facade.MinElevation))
	a.form.AddInputField("Max elevation", strconv.Itoa(cfg.Facade.MaxElevation), 10, nil, intSetter(&cfg.Facade.MaxElevation))
	a.form.AddInputField("Min height", strconv.Itoa(cfg.MoveConstraints.MinHeight), 10, nil, intSetter(&cfg.MoveConstraints.MinHeight))
	a.form.AddInputField("Max height", strconv.Itoa(cfg.MoveConstraints.MaxHeight), 10, nil, intSetter(&cfg.MoveConstraints.MaxHeight))
	a.form.AddCheckbox("Shadow active", cfg.ShadowActive, func(v bool) { cfg.ShadowActive = v })
	a.form.AddCheckbox("Dawn active", cfg.DawnActive, func(v bool) { cfg.DawnActive = v })
	a.form.AddCheckbox("Ventilation active", cfg.VentilationActive, func(v bool) { cfg.VentilationActive = v })
	a.form.AddCheckbox("Lockout protection", cfg.LockoutProtectionActive, func(v bool) { cfg.LockoutProtectionActive = v })
	a.form.AddCheckbox("Solar heating available", cfg.SolarHeatingAvailable, func(v bool) { cfg.SolarHeatingAvailable = v })
	a.form.AddButton("Save", func() { a.save(path) })
	a.form.AddButton("Reload", func() { a.loadDevice(path) })

	a.setStatus(fmt.Sprintf("editing %s", path))
}

func (a *App) save(path string) {
	if a.current == nil {
		return
	}
	if err := a.current.Validate(); err != nil {
		a.setStatus(fmt.Sprintf("[red]validation failed: %v[-]", err))
		return
	}
	if err := a.current.Save(path); err != nil {
		a.setStatus(fmt.Sprintf("[red]save failed: %v[-]", err))
		return
	}
	a.setStatus(fmt.Sprintf("[green]saved %s[-]", path))
}

func (a *App) setStatus(text string) {
	a.status.SetText(text)
}

func variantIndex(v config.Variant) int {
	if v == config.VariantShutter {
		return 1
	}
	return 0
}

func intSetter(field *int) func(string) {
	return func(v string) {
		n, err := strconv.Atoi(v)
		if err != nil {
			return
		}
		*field = n
	}
}

// Run starts the tview event loop; it blocks until the user quits.
func (a *App) Run() error {
	return a.tviewApp.Run()
}

func main() {
	dir := "configs/devices"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	app, err := NewApp(dir)
	if err != nil {
		log.Fatalf("shadecfg: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Fatalf("shadecfg: %v", err)
	}
}
