// --------------------------------------------------------------------------------
// Author: Thomas F McGeehan V
//
// This file is part of a software project developed by Thomas F McGeehan V.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
// For more information about the MIT License, please visit:
// https://opensource.org/licenses/MIT
//
// Acknowledgment appreciated but not required.
// --------------------------------------------------------------------------------

// Package github lists the trip files published as GitHub release assets,
// so a plan can be checked against what actually exists before fetching.
package github

import (
	"context"
	"fmt"
	"net/http"

	"github.com/arrowarc/tripload/pkg/tripdata"
	"github.com/google/go-github/v64/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	DefaultOwner = "DataTalksClub"
	DefaultRepo  = "nyc-tlc-data"
)

// NewClient creates a GitHub client. An empty token makes anonymous
// requests, which GitHub rate limits per address.
func NewClient(ctx context.Context, token string, httpClient *http.Client) *github.Client {
	if token == "" {
		return github.NewClient(httpClient)
	}
	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return github.NewClient(oauth2.NewClient(ctx, ts))
}

// Releases reads the assets of a repository's releases. Each data type is
// published under a release tagged with its name.
type Releases struct {
	Client *github.Client
	Owner  string
	Repo   string
	Logger *zap.Logger
}

// NewReleases returns a Releases for the default trip data repository.
func NewReleases(client *github.Client, logger *zap.Logger) *Releases {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Releases{Client: client, Owner: DefaultOwner, Repo: DefaultRepo, Logger: logger}
}

// Assets returns the asset sizes of the release tagged tag, by file name.
func (r *Releases) Assets(ctx context.Context, tag string) (map[string]int64, error) {
	release, _, err := r.Client.Repositories.GetReleaseByTag(ctx, r.Owner, r.Repo, tag)
	if err != nil {
		return nil, fmt.Errorf("failed to get release %s/%s@%s: %w", r.Owner, r.Repo, tag, err)
	}

	assets := make(map[string]int64)
	opts := &github.ListOptions{PerPage: 100}
	for {
		page, resp, err := r.Client.Repositories.ListReleaseAssets(ctx, r.Owner, r.Repo, release.GetID(), opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list assets of release %s: %w", tag, err)
		}
		for _, a := range page {
			assets[a.GetName()] = int64(a.GetSize())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	r.Logger.Debug("listed release assets", zap.String("tag", tag), zap.Int("assets", len(assets)))
	return assets, nil
}

// FilterPlan splits plan into the files published as release assets and
// the ones that are not. Releases are listed once per data type.
func (r *Releases) FilterPlan(ctx context.Context, plan []tripdata.SourceDescriptor) (available, missing []tripdata.SourceDescriptor, err error) {
	byTag := make(map[tripdata.DataType]map[string]int64)
	for _, d := range plan {
		assets, ok := byTag[d.DataType]
		if !ok {
			assets, err = r.Assets(ctx, d.DataType.String())
			if err != nil {
				return nil, nil, err
			}
			byTag[d.DataType] = assets
		}
		if _, ok := assets[d.FileName]; ok {
			available = append(available, d)
		} else {
			missing = append(missing, d)
		}
	}
	return available, missing, nil
}
