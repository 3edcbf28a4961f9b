package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bamsammich/aio/internal/batch"
	"github.com/bamsammich/aio/internal/ui"
	"github.com/bamsammich/aio/internal/verify"
)

func newCopyCmd(g *globalFlags) *cobra.Command {
	var (
		srcOffset  int64
		dstOffset  int64
		length     int64
		verifyFlag bool
	)

	cmd := &cobra.Command{
		Use:   "copy <source> <destination>",
		Short: "Copy a byte range from one existing file into another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, g, &verifyFlag)
			if err != nil {
				return err
			}
			defer s.close()

			l := s.svc.NewList()
			src, err := l.ResolvePath(args[0])
			if err != nil {
				return fmt.Errorf("source: %w", err)
			}
			dst, err := l.ResolvePath(args[1])
			if err != nil {
				l.Discard()
				return fmt.Errorf("destination: %w", err)
			}

			if !cmd.Flags().Changed("length") {
				fi, statErr := os.Stat(src.Path())
				if statErr != nil {
					l.Discard()
					return fmt.Errorf("source: %w", statErr)
				}
				length = max(fi.Size()-srcOffset, 0)
			}

			l.Copy(batch.File(src, srcOffset, length), batch.File(dst, dstOffset, 0))
			res, err := s.execute(l)
			if err != nil {
				return err
			}
			if res.Err != nil {
				slog.Error("copy failed", "error", res.Err)
				return &exitError{code: 1}
			}

			if verifyFlag {
				if err := verify.CompareRanges(src.Path(), srcOffset, dst.Path(), dstOffset, length); err != nil {
					slog.Error("verify failed", "error", err)
					return &exitError{code: 1}
				}
				slog.Info("verified", "bytes", res.Bytes)
			}
			return nil
		},
	}

	cmd.Flags().Var(newSizeValue(&srcOffset), "src-offset", "byte offset to start reading the source")
	cmd.Flags().Var(newSizeValue(&dstOffset), "dst-offset", "byte offset to start writing the destination")
	cmd.Flags().Var(newSizeValue(&length), "length", "bytes to copy (default: rest of source)")
	cmd.Flags().BoolVar(&verifyFlag, "verify", false, "verify checksums after copy (BLAKE3)")
	return cmd
}

func newWriteCmd(g *globalFlags) *cobra.Command {
	var (
		offset int64
		data   string
	)

	cmd := &cobra.Command{
		Use:   "write <file>",
		Short: "Write bytes into an existing file at an offset",
		Long:  "Write --data, or stdin when --data is not given, into an existing file at --offset.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := []byte(data)
			if !cmd.Flags().Changed("data") {
				var err error
				payload, err = io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
			}

			s, err := openSession(cmd, g, nil)
			if err != nil {
				return err
			}
			defer s.close()

			l := s.svc.NewList()
			h, err := l.ResolvePath(args[0])
			if err != nil {
				return err
			}
			l.Copy(batch.Mem(payload), batch.File(h, offset, 0))

			res, err := s.execute(l)
			if err != nil {
				return err
			}
			if res.Err != nil {
				slog.Error("write failed", "error", res.Err)
				return &exitError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().Var(newSizeValue(&offset), "offset", "byte offset to write at")
	cmd.Flags().StringVar(&data, "data", "", "literal text to write (default: read stdin)")
	return cmd
}

func newReadCmd(g *globalFlags) *cobra.Command {
	var (
		offset int64
		length int64
	)

	cmd := &cobra.Command{
		Use:   "read <file>",
		Short: "Read a byte range; hexdump on a terminal, raw bytes otherwise",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, g, nil)
			if err != nil {
				return err
			}
			defer s.close()

			l := s.svc.NewList()
			h, err := l.ResolvePath(args[0])
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("length") {
				fi, statErr := os.Stat(h.Path())
				if statErr != nil {
					l.Discard()
					return statErr
				}
				length = max(fi.Size()-offset, 0)
			}

			buf := make([]byte, length)
			l.Copy(batch.File(h, offset, length), batch.Mem(buf))
			res, err := s.execute(l)
			if err != nil {
				return err
			}
			if res.Err != nil {
				slog.Error("read failed", "error", res.Err)
				return &exitError{code: 1}
			}

			out := cmd.OutOrStdout()
			if f, ok := out.(*os.File); ok && ui.IsTTY(f.Fd()) {
				_, err = io.WriteString(out, hex.Dump(buf[:res.Bytes]))
			} else {
				_, err = out.Write(buf[:res.Bytes])
			}
			return err
		},
	}

	cmd.Flags().Var(newSizeValue(&offset), "offset", "byte offset to read from")
	cmd.Flags().Var(newSizeValue(&length), "length", "bytes to read (default: rest of file)")
	return cmd
}

// execute submits l as one batch and waits until its callbacks have run.
func (s *session) execute(l *batch.List) (batch.Result, error) {
	var res batch.Result
	l.OnResult(func(r batch.Result) { res = r })

	ticket, err := s.svc.Execute(l)
	if err != nil {
		l.Discard()
		return batch.Result{}, err
	}
	if err := s.svc.Await(s.ctx, ticket); err != nil {
		return batch.Result{}, fmt.Errorf("wait for batch %d: %w", ticket, err)
	}
	return res, nil
}
