package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"adrmanager/internal/adr"
	"adrmanager/internal/gitlab"
	"adrmanager/internal/gitrepo"

	"github.com/spf13/cobra"
)

const gitlabTimeout = 30 * time.Second

type options struct {
	gitlabURL string
	token     string
	project   string
	path      string
	branch    string
	repo      string
	author    string
	verbose   bool

	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "adrctl",
		Short: "Manage Architecture Decision Records stored in a git repository",
		Long: `adrctl reads and writes ADR JSON files in a GitLab project (personal access
token) or in a local git repository (--repo). Every write is a commit.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if opts.verbose {
				level = slog.LevelDebug
			}
			opts.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.gitlabURL, "gitlab-url", envOr("GITLAB_URL", "https://gitlab.com"), "GitLab base URL")
	flags.StringVar(&opts.token, "token", os.Getenv("GITLAB_TOKEN"), "GitLab personal access token (default $GITLAB_TOKEN)")
	flags.StringVar(&opts.project, "project", os.Getenv("ADR_PROJECT"), "GitLab project id or path")
	flags.StringVar(&opts.path, "path", "adrs", "directory holding the ADR files")
	flags.StringVar(&opts.branch, "branch", "main", "branch to read and commit to")
	flags.StringVar(&opts.repo, "repo", "", "use a local git repository instead of GitLab")
	flags.StringVar(&opts.author, "author", "", "commit author name for local repositories (default $USER)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newListCmd(opts),
		newShowCmd(opts),
		newHistoryCmd(opts),
		newCreateCmd(opts),
		newUpdateCmd(opts),
		newDeleteCmd(opts),
		newExportCmd(opts),
		newStatusCmd(opts),
	)
	return root
}

// open returns the ADR service over the selected backend and the identity
// commits are made as.
func (o *options) open(ctx context.Context) (*adr.Service, adr.Identity, error) {
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	if o.repo != "" {
		who := adr.Identity{Name: firstNonEmpty(o.author, os.Getenv("USER"), "adrctl")}
		repo, err := gitrepo.Open(o.repo, who)
		if err != nil {
			return nil, adr.Identity{}, err
		}
		return adr.NewService(repo, o.path, o.branch, logger), who, nil
	}

	if strings.TrimSpace(o.token) == "" {
		return nil, adr.Identity{}, errors.New("a GitLab token is required: pass --token or set GITLAB_TOKEN, or use --repo")
	}
	if strings.TrimSpace(o.project) == "" {
		return nil, adr.Identity{}, errors.New("--project is required with GitLab")
	}
	client, err := gitlab.NewClient(strings.TrimRight(o.gitlabURL, "/"), gitlab.StaticToken(o.token), gitlabTimeout)
	if err != nil {
		return nil, adr.Identity{}, err
	}
	user, err := client.CurrentUser(ctx)
	if err != nil {
		return nil, adr.Identity{}, err
	}
	who := adr.Identity{Name: firstNonEmpty(user.Name, user.Username), Email: user.Email}
	return adr.NewService(client.ProjectFiles(o.project), o.path, o.branch, logger), who, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
