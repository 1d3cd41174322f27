package config

import "fmt"

// RepoConfig locates the dataset file and the GitHub endpoints serving it.
type RepoConfig interface {
	GetOwner() string
	GetRepoName() string
	GetBranch() string
	GetContentPath() string
	GetReadToken() string
	GetGitHubAPIURL() string
	GetGitHubOAuthURL() string
	GetDefaultClientID() string
	GetContentKey() string
}

type Repo struct {
	Owner           string `envconfig:"OWNER" default:"Monofly"`
	Name            string `envconfig:"REPO" default:"AMQ-Missing-Songs"`
	Branch          string `envconfig:"BRANCH" default:"main"`
	ContentPath     string `envconfig:"CONTENT_PATH" default:"data/anime_songs.json"`
	ReadToken       string `envconfig:"GH_READ_TOKEN"`
	APIURL          string `envconfig:"GITHUB_API_URL" default:"https://api.github.com"`
	OAuthURL        string `envconfig:"GITHUB_OAUTH_URL" default:"https://github.com"`
	DefaultClientID string `envconfig:"GITHUB_CLIENT_ID"`
}

var _ RepoConfig = Repo{}

func (r Repo) GetOwner() string           { return r.Owner }
func (r Repo) GetRepoName() string        { return r.Name }
func (r Repo) GetBranch() string          { return r.Branch }
func (r Repo) GetContentPath() string     { return r.ContentPath }
func (r Repo) GetReadToken() string       { return r.ReadToken }
func (r Repo) GetGitHubAPIURL() string    { return r.APIURL }
func (r Repo) GetGitHubOAuthURL() string  { return r.OAuthURL }
func (r Repo) GetDefaultClientID() string { return r.DefaultClientID }

// GetContentKey identifies the dataset revision stream in every cache tier.
func (r Repo) GetContentKey() string {
	return fmt.Sprintf("%s/%s@%s:%s", r.Owner, r.Name, r.Branch, r.ContentPath)
}
