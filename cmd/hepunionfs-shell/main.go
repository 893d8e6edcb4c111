// Command hepunionfs-shell mounts a two-branch union in-process and runs
// a handful of diagnostic subcommands against it — ls, cat, stat, rm,
// mkdir — against real OS directories. It exists to exercise the union
// core end to end without a FUSE front-end.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/hepunion/unionfs"
)

var (
	roPath string
	rwPath string
	mount  *unionfs.MountState
)

func mustMount() *unionfs.MountState {
	if mount != nil {
		return mount
	}
	m, err := unionfs.New(
		unionfs.WithReadOnlyBranch(afero.NewBasePathFs(afero.NewOsFs(), roPath)),
		unionfs.WithWritableBranch(afero.NewBasePathFs(afero.NewOsFs(), rwPath)),
		unionfs.WithReadOnlyBranchPath(roPath),
		unionfs.WithLogger(logrus.StandardLogger()),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mount:", err)
		os.Exit(1)
	}
	mount = m
	return mount
}

func main() {
	root := &cobra.Command{
		Use:   "hepunionfs-shell",
		Short: "Diagnostic shell for a two-branch union mount",
	}
	root.PersistentFlags().StringVar(&roPath, "ro", "", "read-only branch path")
	root.PersistentFlags().StringVar(&rwPath, "rw", "", "writable branch path")
	root.MarkPersistentFlagRequired("ro")
	root.MarkPersistentFlagRequired("rw")

	root.AddCommand(lsCmd(), catCmd(), statCmd(), rmCmd(), mkdirCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <path>",
		Args:  cobra.ExactArgs(1),
		Short: "List the union-merged contents of a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := mustMount().Readdir(args[0])
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("%v\t%d\t%s\n", e.Mode, e.Inode, e.Name)
			}
			return nil
		},
	}
}

func catCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path>",
		Args:  cobra.ExactArgs(1),
		Short: "Print a file's union-resolved contents",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := mustMount().Open(args[0], os.O_RDONLY, unionfs.Credentials{UID: 0, GID: 0})
			if err != nil {
				return err
			}
			defer f.Close()
			_, err = io.Copy(os.Stdout, f)
			return err
		},
	}
}

func statCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Args:  cobra.ExactArgs(1),
		Short: "Print a path's union-merged attributes",
		RunE: func(cmd *cobra.Command, args []string) error {
			info, ino, err := mustMount().Lookup(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("inode=%d mode=%v size=%d mtime=%s\n", ino, info.Mode(), info.Size(), info.ModTime())
			return nil
		},
	}
}

func rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Args:  cobra.ExactArgs(1),
		Short: "Remove a file, whiting out an RO entry of the same name",
		RunE: func(cmd *cobra.Command, args []string) error {
			return mustMount().Unlink(args[0], unionfs.Credentials{UID: 0, GID: 0})
		},
	}
}

func mkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Args:  cobra.ExactArgs(1),
		Short: "Create a directory in the writable branch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return mustMount().Mkdir(args[0], 0755, unionfs.Credentials{UID: 0, GID: 0})
		},
	}
}
