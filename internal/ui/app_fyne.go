//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/layout"
	fstorage "fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"goportfolio/internal/crash"
	"goportfolio/internal/domain"
	"goportfolio/internal/editor"
	"goportfolio/internal/export"
	applog "goportfolio/internal/log"
	"goportfolio/internal/picture"
	"goportfolio/internal/session"
	"goportfolio/internal/store"
	"goportfolio/internal/version"
)

const (
	// pixel density of the on-screen preview raster
	previewScale  = 1.5
	autosaveDelay = 2 * time.Second
)

// Run opens the editor window and blocks until it is closed.
func Run(opts Options) error {
	l := applog.WithComponent("ui")
	l.Info("starting UI")

	target := &crash.Target{}
	defer crash.Recover(target)

	sess, err := session.Open(session.Options{
		Config:   opts.Config,
		Root:     opts.Workspace,
		Create:   opts.Workspace != "",
		AutoSave: autosaveDelay,
	})
	if err != nil {
		return err
	}
	defer sess.Close()
	if sess.Root() != "" {
		target.Root = sess.Root()
		target.Autosave = sess.AutosaveCrash
	}

	fyneApp := app.NewWithID("goportfolio")
	w := fyneApp.NewWindow("GoPortfolio")
	prefs := fyneApp.Preferences()
	winW := prefs.IntWithFallback("window.width", 1280)
	winH := prefs.IntWithFallback("window.height", 860)
	if winW < 900 {
		winW = 900
	}
	if winH < 600 {
		winH = 600
	}
	w.Resize(fyne.NewSize(float32(winW), float32(winH)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	status := widget.NewLabel("Ready")
	pc := NewPreviewCanvas()
	if z := prefs.FloatWithFallback("preview.zoom", defaultZoom); z > 0 {
		pc.SetZoom(float32(z))
	}
	f := newForm(sess.Editor(), w, l, status)
	f.load(sess.Profile())

	// preview follows the store; intermediate versions are skipped while a raster runs
	go func() {
		var last store.Version
		for {
			_, v, err := sess.Live().Next(ctx, last)
			if err != nil {
				return
			}
			last = v
			b, pv, err := sess.PreviewPNG(ctx, previewScale)
			if err != nil {
				if ctx.Err() == nil {
					l.Warn("preview failed", slog.Any("err", err))
					fyne.Do(func() { status.SetText("Preview failed: " + err.Error()) })
				}
				continue
			}
			img, err := png.Decode(bytes.NewReader(b))
			if err != nil {
				continue
			}
			fyne.Do(func() {
				pc.SetImage(img, previewScale)
				status.SetText(fmt.Sprintf("Preview v%d", pv))
			})
		}
	}()

	undoAction := func() {
		if _, err := sess.Editor().Undo(); err != nil {
			if errors.Is(err, editor.ErrNothingToUndo) {
				status.SetText("Nothing to undo.")
				return
			}
			dialog.ShowError(err, w)
			return
		}
		f.load(sess.Profile())
	}
	redoAction := func() {
		if _, err := sess.Editor().Redo(); err != nil {
			if errors.Is(err, editor.ErrNothingToRedo) {
				status.SetText("Nothing to redo.")
				return
			}
			dialog.ShowError(err, w)
			return
		}
		f.load(sess.Profile())
	}
	saveAction := func() {
		if sess.Root() == "" {
			dialog.ShowInformation("Save", "No workspace open. Start with: goportfolio ui <dir>", w)
			return
		}
		if err := sess.Save(); err != nil {
			dialog.ShowError(err, w)
			return
		}
		status.SetText("Saved.")
	}
	exportAction := func() { showExportDialog(ctx, sess, w, l, status) }
	exportWorkspaceAction := func() {
		if sess.Root() == "" {
			dialog.ShowInformation("Export", "No workspace open.", w)
			return
		}
		status.SetText("Exporting…")
		go func() {
			paths, err := sess.ExportTo(ctx, "", []export.Format{export.FormatPDF, export.FormatPNG})
			fyne.Do(func() {
				if err != nil {
					showExportError(err, w, status)
					return
				}
				status.SetText("Exported.")
				dialog.ShowInformation("Export", "Wrote:\n"+strings.Join(paths, "\n"), w)
			})
		}()
	}

	toolbar := widget.NewToolbar(
		widget.NewToolbarAction(theme.DocumentSaveIcon(), saveAction),
		widget.NewToolbarSeparator(),
		widget.NewToolbarAction(theme.ContentUndoIcon(), undoAction),
		widget.NewToolbarAction(theme.ContentRedoIcon(), redoAction),
		widget.NewToolbarSeparator(),
		widget.NewToolbarAction(theme.ZoomOutIcon(), func() { pc.SetZoom(pc.Zoom() / 1.1) }),
		widget.NewToolbarAction(theme.ZoomInIcon(), func() { pc.SetZoom(pc.Zoom() * 1.1) }),
		widget.NewToolbarSpacer(),
		widget.NewToolbarAction(theme.DownloadIcon(), exportAction),
	)

	split := container.NewHSplit(container.NewVScroll(f.root), container.NewScroll(pc))
	split.SetOffset(0.34)
	w.SetContent(container.NewBorder(toolbar, status, nil, nil, split))

	saveItem := fyne.NewMenuItem("Save", saveAction)
	saveItem.Shortcut = &desktop.CustomShortcut{KeyName: fyne.KeyS, Modifier: fyne.KeyModifierShortcutDefault}
	exportItem := fyne.NewMenuItem("Export PDF…", exportAction)
	exportItem.Shortcut = &desktop.CustomShortcut{KeyName: fyne.KeyE, Modifier: fyne.KeyModifierShortcutDefault}
	exportWsItem := fyne.NewMenuItem("Export PDF + PNG to Workspace", exportWorkspaceAction)
	undoItem := fyne.NewMenuItem("Undo", undoAction)
	undoItem.Shortcut = &desktop.CustomShortcut{KeyName: fyne.KeyZ, Modifier: fyne.KeyModifierShortcutDefault}
	redoItem := fyne.NewMenuItem("Redo", redoAction)
	redoItem.Shortcut = &desktop.CustomShortcut{KeyName: fyne.KeyY, Modifier: fyne.KeyModifierShortcutDefault}
	addItem := fyne.NewMenuItem("Add Project", f.addProject)
	aboutItem := fyne.NewMenuItem("About", func() {
		dialog.ShowInformation("About", "GoPortfolio "+version.String(), w)
	})
	for _, it := range []*fyne.MenuItem{saveItem, exportItem, undoItem, redoItem} {
		sc, action := it.Shortcut, it.Action
		w.Canvas().AddShortcut(sc, func(fyne.Shortcut) { action() })
	}
	w.SetMainMenu(fyne.NewMainMenu(
		fyne.NewMenu("File", saveItem, fyne.NewMenuItemSeparator(), exportItem, exportWsItem),
		fyne.NewMenu("Edit", undoItem, redoItem, fyne.NewMenuItemSeparator(), addItem),
		fyne.NewMenu("Help", aboutItem),
	))

	w.SetCloseIntercept(func() {
		sz := w.Canvas().Size()
		prefs.SetInt("window.width", int(sz.Width))
		prefs.SetInt("window.height", int(sz.Height))
		prefs.SetFloat("preview.zoom", float64(pc.Zoom()))
		cancel()
		w.Close()
	})

	w.ShowAndRun()
	return nil
}

func showExportDialog(ctx context.Context, sess *session.Session, w fyne.Window, l *slog.Logger, status *widget.Label) {
	save := dialog.NewFileSave(func(uc fyne.URIWriteCloser, err error) {
		if err != nil {
			dialog.ShowError(err, w)
			return
		}
		if uc == nil {
			return
		}
		status.SetText("Exporting…")
		go func() {
			defer uc.Close()
			results, err := sess.Export(ctx, []export.Format{export.FormatPDF})
			if err == nil {
				_, err = results[0].WriteTo(uc)
			}
			path := uc.URI().Path()
			fyne.Do(func() {
				if err != nil {
					l.Error("export failed", slog.Any("err", err))
					showExportError(err, w, status)
					return
				}
				status.SetText("Exported to " + path)
			})
		}()
	}, w)
	save.SetFileName(export.Filename(sess.Profile().Name))
	save.SetFilter(fstorage.NewExtensionFileFilter([]string{".pdf"}))
	save.Show()
}

func showExportError(err error, w fyne.Window, status *widget.Label) {
	if st := export.StageOf(err); st != "" {
		status.SetText(fmt.Sprintf("Export failed (%s).", st))
	} else {
		status.SetText("Export failed.")
	}
	dialog.ShowError(err, w)
}

// form is the left pane. Entries write through the editor; load refills
// them without producing edits.
type form struct {
	ed     *editor.Editor
	w      fyne.Window
	l      *slog.Logger
	status *widget.Label

	root     *fyne.Container
	fields   map[domain.Field]*widget.Entry
	projects *fyne.Container
	loading  bool
}

func newForm(ed *editor.Editor, w fyne.Window, l *slog.Logger, status *widget.Label) *form {
	f := &form{ed: ed, w: w, l: l, status: status, fields: map[domain.Field]*widget.Entry{}}
	labels := map[domain.Field]string{
		domain.FieldName:           "Name",
		domain.FieldRole:           "Role",
		domain.FieldSkills:         "Skills (comma separated)",
		domain.FieldEmail:          "Email",
		domain.FieldProfilePicture: "Picture path or URL",
	}
	items := make([]*widget.FormItem, 0, len(domain.Fields)+1)
	for _, fd := range domain.Fields {
		fd := fd
		e := widget.NewEntry()
		e.OnChanged = func(s string) {
			if f.loading {
				return
			}
			if _, err := f.ed.UpdateTextField(fd, s); err != nil {
				f.status.SetText(err.Error())
			}
		}
		f.fields[fd] = e
		items = append(items, widget.NewFormItem(labels[fd], e))
	}
	pick := widget.NewButtonWithIcon("Choose picture…", theme.FileImageIcon(), f.choosePicture)
	items = append(items, widget.NewFormItem("", pick))

	f.projects = container.NewVBox()
	add := widget.NewButtonWithIcon("Add project", theme.ContentAddIcon(), f.addProject)
	f.root = container.NewVBox(
		widget.NewLabelWithStyle("Profile", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		widget.NewForm(items...),
		widget.NewSeparator(),
		widget.NewLabelWithStyle("Projects", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		f.projects,
		add,
	)
	return f
}

// load fills every entry from p and rebuilds the project cards.
func (f *form) load(p domain.Profile) {
	f.loading = true
	defer func() { f.loading = false }()
	for fd, e := range f.fields {
		v, _ := p.Value(fd)
		if fd == domain.FieldProfilePicture && picture.IsDataURI(v) {
			e.SetPlaceHolder("(embedded image)")
			v = ""
		}
		if e.Text != v {
			e.SetText(v)
		}
	}
	f.projects.RemoveAll()
	for _, pr := range p.Projects {
		f.projects.Add(f.projectCard(pr))
	}
	f.projects.Refresh()
}

func (f *form) projectCard(pr domain.ProjectRecord) fyne.CanvasObject {
	id := pr.ID
	entry := func(pf domain.ProjectField, value string, multi bool) *widget.Entry {
		e := widget.NewEntry()
		if multi {
			e = widget.NewMultiLineEntry()
			e.Wrapping = fyne.TextWrapWord
			e.SetMinRowsVisible(3)
		}
		e.SetText(value)
		e.OnChanged = func(s string) {
			if f.loading {
				return
			}
			if _, err := f.ed.UpdateProjectFieldByID(id, pf, s); err != nil {
				f.status.SetText(err.Error())
			}
		}
		return e
	}
	title := entry(domain.ProjectTitle, pr.Title, false)
	title.SetPlaceHolder("Untitled Project")
	tech := entry(domain.ProjectTechnologies, pr.Technologies.Text, false)
	desc := entry(domain.ProjectDescription, pr.Description, true)
	remove := widget.NewButtonWithIcon("Remove", theme.DeleteIcon(), func() {
		if _, err := f.ed.RemoveProjectByID(id); err != nil {
			dialog.ShowError(err, f.w)
			return
		}
		p, _ := f.ed.Store().Snapshot()
		f.load(p)
	})
	body := widget.NewForm(
		widget.NewFormItem("Title", title),
		widget.NewFormItem("Technologies", tech),
		widget.NewFormItem("Description", desc),
	)
	return widget.NewCard("", "", container.NewVBox(body, container.NewHBox(layout.NewSpacer(), remove)))
}

func (f *form) addProject() {
	f.ed.AddProject()
	p, _ := f.ed.Store().Snapshot()
	f.load(p)
}

func (f *form) choosePicture() {
	open := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
		if err != nil {
			dialog.ShowError(err, f.w)
			return
		}
		if rc == nil {
			return
		}
		f.status.SetText("Loading picture…")
		go func() {
			defer rc.Close()
			res := <-f.ed.UpdateProfilePictureAsync(context.Background(), rc)
			fyne.Do(func() {
				switch {
				case res.Err == nil:
					f.status.SetText("Picture updated.")
					p, _ := f.ed.Store().Snapshot()
					f.load(p)
				case errors.Is(res.Err, editor.ErrPictureSuperseded):
					f.l.Debug("picture superseded")
				default:
					f.status.SetText("Picture rejected.")
					dialog.ShowError(res.Err, f.w)
				}
			})
		}()
	}, f.w)
	open.SetFilter(fstorage.NewExtensionFileFilter([]string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp"}))
	open.Show()
}
