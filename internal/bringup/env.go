package bringup

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// EnvOptions selects the host checks.
type EnvOptions struct {
	RequireRoot      bool
	RequireHugepages bool
	MeminfoPath      string // Default /proc/meminfo
	MountsPath       string // Default /proc/mounts
}

func (o EnvOptions) meminfoPath() string {
	if o.MeminfoPath == "" {
		return "/proc/meminfo"
	}
	return o.MeminfoPath
}

func (o EnvOptions) mountsPath() string {
	if o.MountsPath == "" {
		return "/proc/mounts"
	}
	return o.MountsPath
}

func checkRoot(euid func() int) (string, error) {
	if id := euid(); id != 0 {
		return "", fmt.Errorf("must run as root, effective uid is %d", id)
	}
	return "running as root", nil
}

// checkHugepages requires a positive HugePages_Total in meminfo.
func checkHugepages(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok || key != "HugePages_Total" {
			continue
		}
		total, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return "", fmt.Errorf("malformed HugePages_Total %q", strings.TrimSpace(value))
		}
		if total <= 0 {
			return "", fmt.Errorf("no huge pages reserved")
		}
		return fmt.Sprintf("%d huge pages reserved", total), nil
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("HugePages_Total not found in %s", path)
}

// checkHugetlbfs requires a mounted hugetlbfs.
func checkHugetlbfs(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) >= 3 && fields[2] == "hugetlbfs" {
			return "hugetlbfs mounted at " + fields[1], nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("hugetlbfs is not mounted")
}
