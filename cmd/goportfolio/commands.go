/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"goportfolio/internal/config"
	"goportfolio/internal/crash"
	"goportfolio/internal/domain"
	"goportfolio/internal/export"
	applog "goportfolio/internal/log"
	"goportfolio/internal/picture"
	"goportfolio/internal/raster"
	"goportfolio/internal/session"
	"goportfolio/internal/storage"
	"goportfolio/internal/telemetry"
	"goportfolio/internal/ui"
	"goportfolio/internal/version"
	"goportfolio/internal/web"
)

// cli holds what the commands share. Fields other than out and target are
// filled in by the root command's pre-run.
type cli struct {
	out    io.Writer
	target *crash.Target
	cfg    config.AppConfig
	log    *slog.Logger
	// rasterizer replaces the configured one; set by tests.
	rasterizer raster.Rasterizer
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "goportfolio",
		Short:         "Edit a developer portfolio and export it as PDF",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			telemetry.Default().Flush(ctx)
		},
	}
	root.SetOut(c.out)
	root.PersistentFlags().String("rasterizer", "", "rasterizer to use: native or chrome")
	root.PersistentFlags().Float64("scale", 0, "export device scale (default from config)")
	root.PersistentFlags().String("page", "", "page mode: scaled or a4")

	root.AddCommand(
		c.versionCmd(),
		c.initCmd(),
		c.showCmd(),
		c.setCmd(),
		c.importCmd(),
		c.projectCmd(),
		c.exportCmd(),
		c.inspectCmd(),
		c.historyCmd(),
		c.reindexCmd(),
		c.serveCmd(),
		c.uiCmd(),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	applog.Init(applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
	})
	c.log = applog.WithComponent("cli")
	if err != nil {
		// defaults are still usable
		c.log.Warn("config not loaded", slog.Any("err", err))
	}
	flags := cmd.Flags()
	if v, _ := flags.GetString("rasterizer"); v != "" {
		cfg.Export.Rasterizer = v
	}
	if v, _ := flags.GetFloat64("scale"); v > 0 {
		cfg.Export.Scale = v
	}
	if v, _ := flags.GetString("page"); v != "" {
		cfg.Export.PageMode = v
	}
	c.cfg = cfg
	telemetry.NewDefault(telemetry.FromAppConfig(cfg.General))
	c.log.Debug("start", slog.String("cmd", cmd.CommandPath()))
	return nil
}

// open starts a session on dir and points the crash target at it.
func (c *cli) open(dir string, create bool, autosave time.Duration) (*session.Session, error) {
	s, err := session.Open(session.Options{
		Config:     c.cfg,
		Root:       dir,
		Create:     create,
		Rasterizer: c.rasterizer,
		AutoSave:   autosave,
	})
	if err != nil {
		return nil, err
	}
	if s.Root() != "" {
		c.target.Root = s.Root()
		c.target.Autosave = s.AutosaveCrash
	}
	return s, nil
}

func (c *cli) printf(format string, args ...any) { fmt.Fprintf(c.out, format, args...) }

func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			c.printf("GoPortfolio %s\n", version.String())
		},
	}
}

func (c *cli) initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init <dir>",
		Short: "Create a workspace with the sample profile or an imported YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := domain.DefaultProfile()
			if from, _ := cmd.Flags().GetString("from"); from != "" {
				imported, err := readYAML(from)
				if err != nil {
					return err
				}
				p = imported
			}
			abs, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if _, err := os.Stat(filepath.Join(abs, storage.DocumentFileName)); err == nil {
				return fmt.Errorf("workspace already exists at %s", abs)
			}
			ws, err := storage.Init(abs, p)
			if err != nil {
				return err
			}
			c.log.Info("init workspace", slog.String("root", ws.Root))
			c.printf("Created workspace at %s\n", ws.Root)
			return nil
		},
	}
	cmd.Flags().String("from", "", "YAML profile to start from")
	return cmd
}

func readYAML(path string) (domain.Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Profile{}, err
	}
	defer f.Close()
	return storage.ImportYAML(f)
}

func (c *cli) showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <dir>",
		Short: "Print the profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := storage.Open(args[0])
			if err != nil {
				return err
			}
			if ws.Recovered {
				c.log.Warn("profile recovered from backup", slog.String("root", ws.Root))
			}
			switch format, _ := cmd.Flags().GetString("format"); strings.ToLower(format) {
			case "yaml", "yml":
				return storage.ExportYAML(c.out, ws.Profile)
			case "json":
				b, err := storage.EncodeJSON(ws.Profile)
				if err != nil {
					return err
				}
				_, err = c.out.Write(b)
				return err
			case "", "text":
				c.printSummary(ws.Profile)
				return nil
			default:
				return fmt.Errorf("unknown format %q", format)
			}
		},
	}
	cmd.Flags().StringP("format", "f", "text", "output format: text, json or yaml")
	return cmd
}

func (c *cli) printSummary(p domain.Profile) {
	pic := p.ProfilePicture
	if picture.IsDataURI(pic) {
		pic = "(embedded image)"
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Name:\t%s\n", p.Name)
	fmt.Fprintf(tw, "Role:\t%s\n", p.Role)
	fmt.Fprintf(tw, "Email:\t%s\n", p.Email)
	fmt.Fprintf(tw, "Skills:\t%s\n", strings.Join(p.Skills.Items, " | "))
	fmt.Fprintf(tw, "Picture:\t%s\n", pic)
	fmt.Fprintf(tw, "Projects:\t%d\n", len(p.Projects))
	for i, pr := range p.Projects {
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\n", i, pr.ID, pr.Title, pr.Technologies.Text)
	}
	_ = tw.Flush()
}

func (c *cli) setCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <dir> <field> <value>",
		Short: "Set a profile field (name, role, skills, email, picture)",
		Long: "Set a profile field. For picture, a path to an existing image file is " +
			"embedded as a data URI; any other value is stored as a path or URL.",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := domain.ParseField(args[1])
			if err != nil {
				return err
			}
			s, err := c.open(args[0], false, 0)
			if err != nil {
				return err
			}
			defer s.Close()
			value := args[2]
			if f == domain.FieldProfilePicture {
				if file, err := os.Open(value); err == nil {
					_, err = s.Editor().UpdateProfilePicture(cmd.Context(), file)
					file.Close()
					if err != nil {
						return err
					}
					return s.Save()
				}
			}
			if _, err := s.Editor().UpdateTextField(f, value); err != nil {
				return err
			}
			return s.Save()
		},
	}
}

func (c *cli) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <dir> <file.yaml>",
		Short: "Replace the profile with one read from YAML",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			p, err := readYAML(args[1])
			if err != nil {
				return err
			}
			s, err := c.open(args[0], true, 0)
			if err != nil {
				return err
			}
			defer s.Close()
			s.Editor().Reset(p)
			if err := s.Save(); err != nil {
				return err
			}
			c.printf("Imported %d projects\n", len(p.Projects))
			return nil
		},
	}
}

func (c *cli) projectCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "project", Short: "Manage projects"}

	add := &cobra.Command{
		Use:   "add <dir>",
		Short: "Append a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.open(args[0], false, 0)
			if err != nil {
				return err
			}
			defer s.Close()
			id, _ := s.Editor().AddProject()
			for _, pf := range domain.ProjectFields {
				if v, _ := cmd.Flags().GetString(string(pf)); v != "" {
					if _, err := s.Editor().UpdateProjectFieldByID(id, pf, v); err != nil {
						return err
					}
				}
			}
			if err := s.Save(); err != nil {
				return err
			}
			c.printf("%s\n", id)
			return nil
		},
	}
	add.Flags().String(string(domain.ProjectTitle), "", "project title")
	add.Flags().String(string(domain.ProjectTechnologies), "", "comma separated technologies")
	add.Flags().String(string(domain.ProjectDescription), "", "project description")

	remove := &cobra.Command{
		Use:   "remove <dir> <index|id>",
		Short: "Remove a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			s, err := c.open(args[0], false, 0)
			if err != nil {
				return err
			}
			defer s.Close()
			id, err := projectID(s.Profile(), args[1])
			if err != nil {
				return err
			}
			if _, err := s.Editor().RemoveProjectByID(id); err != nil {
				return err
			}
			return s.Save()
		},
	}

	set := &cobra.Command{
		Use:   "set <dir> <index|id> <field> <value>",
		Short: "Set a project field (title, technologies, description)",
		Args:  cobra.ExactArgs(4),
		RunE: func(_ *cobra.Command, args []string) error {
			f, err := domain.ParseProjectField(args[2])
			if err != nil {
				return err
			}
			s, err := c.open(args[0], false, 0)
			if err != nil {
				return err
			}
			defer s.Close()
			id, err := projectID(s.Profile(), args[1])
			if err != nil {
				return err
			}
			if _, err := s.Editor().UpdateProjectFieldByID(id, f, args[3]); err != nil {
				return err
			}
			return s.Save()
		},
	}

	move := &cobra.Command{
		Use:   "move <dir> <index|id> <to>",
		Short: "Move a project to another position",
		Args:  cobra.ExactArgs(3),
		RunE: func(_ *cobra.Command, args []string) error {
			to, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid position %q", args[2])
			}
			s, err := c.open(args[0], false, 0)
			if err != nil {
				return err
			}
			defer s.Close()
			id, err := projectID(s.Profile(), args[1])
			if err != nil {
				return err
			}
			if _, err := s.Editor().MoveProject(id, to); err != nil {
				return err
			}
			return s.Save()
		},
	}

	cmd.AddCommand(add, remove, set, move)
	return cmd
}

// projectID resolves a list position or a project id.
func projectID(p domain.Profile, ref string) (string, error) {
	if i, err := strconv.Atoi(ref); err == nil {
		if i < 0 || i >= len(p.Projects) {
			return "", fmt.Errorf("project index %d out of range (have %d)", i, len(p.Projects))
		}
		return p.Projects[i].ID, nil
	}
	if p.ProjectIndex(ref) < 0 {
		return "", fmt.Errorf("project %q not found", ref)
	}
	return ref, nil
}

func (c *cli) exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <dir>",
		Short: "Export the portfolio as PDF (and optionally PNG)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, _ := cmd.Flags().GetStringSlice("format")
			formats, err := export.ParseFormats(list)
			if err != nil {
				return err
			}
			out, _ := cmd.Flags().GetString("out")
			s, err := c.open(args[0], false, 0)
			if err != nil {
				return err
			}
			defer s.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), c.cfg.Export.Timeout()+30*time.Second)
			defer cancel()
			paths, err := s.ExportTo(ctx, out, formats)
			if err != nil {
				if st := export.StageOf(err); st != "" {
					return fmt.Errorf("export failed during %s: %w", st, err)
				}
				return err
			}
			for _, p := range paths {
				c.printf("%s\n", p)
			}
			return nil
		},
	}
	cmd.Flags().StringSlice("format", []string{"pdf"}, "output formats: pdf, png")
	cmd.Flags().StringP("out", "o", "", "output directory (default <dir>/exports)")
	return cmd
}

func (c *cli) inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.pdf>",
		Short: "Show page size, page count and images of an exported PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			info, err := export.Inspect(data)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(c.out)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
}

func (c *cli) historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <dir>",
		Short: "List recent exports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			idx, err := storage.OpenIndex(args[0], c.cfg.Cache.MaxBytes)
			if err != nil {
				return err
			}
			defer idx.Close()
			recs, err := idx.ListExports(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tFORMAT\tSTATUS\tSIZE\tFILE")
			for _, r := range recs {
				status := r.Status
				if r.Stage != "" {
					status += " (" + r.Stage + ")"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", r.Time.Local().Format(time.DateTime), r.Format, status, r.Bytes, r.Filename)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "number of entries (0 for all)")
	return cmd
}

func (c *cli) reindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex <dir>",
		Short: "Check the workspace index and rebuild it if it is corrupt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rebuilt, err := storage.DetectAndRebuildIndex(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if rebuilt {
				c.printf("Index rebuilt.\n")
			} else {
				c.printf("Index OK.\n")
			}
			return nil
		},
	}
}

func (c *cli) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [dir]",
		Short: "Run the browser editor",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var dir string
			if len(args) == 1 {
				dir = args[0]
			}
			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = c.cfg.Web.Addr
			}
			s, err := c.open(dir, dir != "", 2*time.Second)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			c.printf("Editor at http://%s/\n", addr)
			return web.New(s).ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().String("addr", "", "listen address (default from config)")
	return cmd
}

func (c *cli) uiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ui [dir]",
		Short: "Launch the desktop editor (build with -tags fyne)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			var dir string
			if len(args) == 1 {
				dir = args[0]
			}
			return ui.Run(ui.Options{Config: c.cfg, Workspace: dir})
		},
	}
}
