package output

import (
	"fmt"
	"io"
	"time"
)

// BannerInfo holds the identity fields displayed at the top of a run.
type BannerInfo struct {
	Version string
	SHA     string
	Branch  string
	Date    string
}

// NewBannerInfo creates a BannerInfo with today's date.
func NewBannerInfo(version, sha, branch string) BannerInfo {
	return BannerInfo{
		Version: version,
		SHA:     sha,
		Branch:  branch,
		Date:    time.Now().UTC().Format("2006-01-02"),
	}
}

// Banner prints the one-line tool identity: name, version, sha · branch, date.
func Banner(w io.Writer, info BannerInfo, color bool) {
	name := "webfreight"
	if color {
		name = "\033[1;36m" + name + "\033[0m"
	}
	line := "    " + name
	if info.Version != "" {
		line += "  " + info.Version
	}
	switch {
	case info.SHA != "" && info.Branch != "":
		line += "  " + info.SHA + " · " + info.Branch
	case info.SHA != "":
		line += "  " + info.SHA
	}
	if info.Date != "" {
		line += "  " + Dimmed(info.Date, color)
	}
	fmt.Fprintf(w, "\n%s\n", line)
}
