package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// NewSpaceCommand groups space management commands
func NewSpaceCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "space",
		Short: "Manage spaces",
	}
	cmd.AddCommand(newSpaceCreateCommand(a))
	cmd.AddCommand(newSpaceGetCommand(a))
	return cmd
}

func newSpaceCreateCommand(a *app) *cobra.Command {
	var ownerID, spaceID string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a space with an empty quota",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := simplemedia.CreateSpaceRequest{}
			var err error
			if ownerID != "" {
				if req.OwnerID, err = uuid.Parse(ownerID); err != nil {
					return fmt.Errorf("invalid --owner: %w", err)
				}
			} else {
				req.OwnerID = uuid.New()
			}
			if spaceID != "" {
				if req.ID, err = uuid.Parse(spaceID); err != nil {
					return fmt.Errorf("invalid --id: %w", err)
				}
			}

			svc, err := a.svc(cmd.Context())
			if err != nil {
				return err
			}
			space, err := svc.CreateSpace(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.print(space)
		},
	}

	cmd.Flags().StringVar(&ownerID, "owner", "", "owner id (random when omitted)")
	cmd.Flags().StringVar(&spaceID, "id", "", "space id (random when omitted)")
	return cmd
}

func newSpaceGetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <space-id>",
		Short: "Show a space and its used bytes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spaceID, err := parseID("space", args[0])
			if err != nil {
				return err
			}
			svc, err := a.svc(cmd.Context())
			if err != nil {
				return err
			}
			space, err := svc.GetSpace(cmd.Context(), spaceID)
			if err != nil {
				return err
			}
			return a.print(space)
		},
	}
}

// NewIngestCommand uploads a local file into a space
func NewIngestCommand(a *app) *cobra.Command {
	var mimeType string
	var progress bool

	cmd := &cobra.Command{
		Use:   "ingest <space-id> <file>",
		Short: "Upload a local file into a space",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			spaceID, err := parseID("space", args[0])
			if err != nil {
				return err
			}
			filePath := args[1]

			info, err := os.Stat(filePath)
			if err != nil {
				return fmt.Errorf("stat %s: %w", filePath, err)
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", filePath)
			}
			if mimeType == "" {
				mt, err := mimetype.DetectFile(filePath)
				if err != nil {
					return fmt.Errorf("detect mime type: %w", err)
				}
				mimeType = mt.String()
			}

			f, err := os.Open(filePath)
			if err != nil {
				return err
			}
			defer f.Close()

			svc, err := a.svc(cmd.Context())
			if err != nil {
				return err
			}
			req := simplemedia.IngestRequest{
				SpaceID:  spaceID,
				FileName: filepath.Base(filePath),
				MimeType: mimeType,
				Body:     f,
				Size:     info.Size(),
			}

			if !progress {
				item, err := svc.Ingest(cmd.Context(), req)
				return a.printItem(cmd, item, err)
			}

			var last simplemedia.IngestEvent
			for ev := range svc.IngestStream(cmd.Context(), req) {
				if ev.Type == simplemedia.IngestProgress {
					fmt.Fprintf(cmd.ErrOrStderr(), "%3d%%\n", ev.Completion)
				}
				last = ev
			}
			return a.printItem(cmd, last.Item, last.Err)
		},
	}

	cmd.Flags().StringVar(&mimeType, "mime-type", "", "MIME type (detected from content when omitted)")
	cmd.Flags().BoolVar(&progress, "progress", false, "print upload progress to stderr")
	return cmd
}

// NewResolveCommand prints an item with a fresh delivery link
func NewResolveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <item-id>",
		Short: "Show an item with a valid delivery link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := parseID("item", args[0])
			if err != nil {
				return err
			}
			svc, err := a.svc(cmd.Context())
			if err != nil {
				return err
			}
			item, err := svc.GetItem(cmd.Context(), itemID)
			return a.printItem(cmd, item, err)
		},
	}
}

// NewRetireCommand deactivates an item
func NewRetireCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "retire <item-id>",
		Short: "Retire an item and release its bytes from the space quota",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := parseID("item", args[0])
			if err != nil {
				return err
			}
			svc, err := a.svc(cmd.Context())
			if err != nil {
				return err
			}
			item, err := svc.RetireItem(cmd.Context(), itemID)
			return a.printItem(cmd, item, err)
		},
	}
}

// NewTranscodeCommand converts a video item into an HLS stream item
func NewTranscodeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "transcode <item-id>",
		Short: "Transcode a video item into an HLS stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := parseID("item", args[0])
			if err != nil {
				return err
			}
			svc, err := a.svc(cmd.Context())
			if err != nil {
				return err
			}
			stream, err := svc.TranscodeItem(cmd.Context(), itemID)
			return a.printItem(cmd, stream, err)
		},
	}
}

// NewVariantsCommand generates AI variants of an image item
func NewVariantsCommand(a *app) *cobra.Command {
	var prompt, provider string
	var count int

	cmd := &cobra.Command{
		Use:   "variants <item-id>",
		Short: "Generate AI variants of an image item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := parseID("item", args[0])
			if err != nil {
				return err
			}
			if count <= 0 {
				return errors.New("--count must be positive")
			}
			svc, err := a.svc(cmd.Context())
			if err != nil {
				return err
			}
			items, err := svc.GenerateVariants(cmd.Context(), simplemedia.GenerateVariantsRequest{
				SourceItemID: itemID,
				Prompt:       prompt,
				Count:        count,
				Provider:     provider,
			})
			var batch *simplemedia.VariantBatchError
			if err != nil && !errors.As(err, &batch) {
				return err
			}
			if batch != nil {
				for _, f := range batch.Failures {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: variant %s failed: %v\n", f.URL, f.Err)
				}
			}
			if items == nil {
				items = []*simplemedia.ContentItem{}
			}
			if perr := a.print(items); perr != nil {
				return perr
			}
			if len(items) == 0 && batch != nil {
				return batch
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&prompt, "prompt", "", "edit prompt (plain variations when omitted)")
	cmd.Flags().IntVar(&count, "count", 1, "number of variants to request")
	cmd.Flags().StringVar(&provider, "provider", "", "variant provider (configured default when omitted)")
	return cmd
}

// printItem prints item when one was returned. A quota failure after a
// successful write is reported as a warning.
func (a *app) printItem(cmd *cobra.Command, item *simplemedia.ContentItem, err error) error {
	if item == nil {
		if err == nil {
			err = errors.New("no item returned")
		}
		return err
	}
	if err != nil {
		if !errors.Is(err, simplemedia.ErrQuotaAdjustmentFailed) && !item.IsComplete() && !item.IsDeactivated() {
			_ = a.print(item)
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}
	return a.print(item)
}

func parseID(kind, v string) (uuid.UUID, error) {
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s id %q: %w", kind, v, err)
	}
	return id, nil
}
