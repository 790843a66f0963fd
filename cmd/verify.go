/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/blacktop/crosspost/internal/xpost"
	"github.com/spf13/cobra"
)

func newVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check credentials against each configured platform",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := normalizeTargets(targetsFlag)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var errs []error
			for _, target := range buildTargets(names, false) {
				platform, ok := target.Platform()
				if !ok {
					fmt.Fprintf(out, "%s: skipped (%v)\n", target.Name(), target.Reason())
					continue
				}
				verifier, ok := platform.(xpost.Verifier)
				if !ok {
					fmt.Fprintf(out, "%s: verification not supported\n", target.Name())
					continue
				}
				handle, err := verifier.Verify(cmd.Context())
				if err != nil {
					fmt.Fprintf(out, "%s: failed (%v)\n", target.Name(), err)
					errs = append(errs, fmt.Errorf("%s: %w", target.Name(), err))
					continue
				}
				fmt.Fprintf(out, "%s: authenticated as %s\n", target.Name(), handle)
			}
			return errors.Join(errs...)
		},
	}
}
