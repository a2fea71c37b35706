// Command jeefs inspects and manipulates JEEFS EEPROM images.
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jethome-iot/go-jeefs/eeprom"
	"github.com/jethome-iot/go-jeefs/header"
	"github.com/jethome-iot/go-jeefs/jeefs"
)

var (
	imagePath string
	imageSize uint16
)

func main() {
	root := &cobra.Command{
		Use:           "jeefs",
		Short:         "JEEFS EEPROM image tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&imagePath, "image", "i", "", "path to the EEPROM image")
	root.MarkPersistentFlagRequired("image")

	root.AddCommand(
		formatCmd(),
		checkCmd(),
		infoCmd(),
		setCmd(),
		lsCmd(),
		addCmd(),
		catCmd(),
		rmCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "jeefs:", err)
		os.Exit(1)
	}
}

// open opens the image and wires it to a file system. Size zero means
// the image must already exist.
func open(size uint16) (*jeefs.FS, *eeprom.FileDevice, error) {
	dev, err := eeprom.Open(imagePath, size)
	if err != nil {
		return nil, nil, err
	}
	return jeefs.New(dev), dev, nil
}

func formatCmd() *cobra.Command {
	var version uint8
	cmd := &cobra.Command{
		Use:   "format",
		Short: "Erase the image and write a fresh header",
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, dev, err := open(imageSize)
			if err != nil {
				return err
			}
			defer dev.Close()
			return fs.Format(header.Version(version))
		},
	}
	cmd.Flags().Uint16Var(&imageSize, "size", 8192, "image size in bytes when creating a new image")
	cmd.Flags().Uint8Var(&version, "version", uint8(header.V3), "header version (1, 2 or 3)")
	return cmd
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify header magic and checksum",
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, dev, err := open(0)
			if err != nil {
				return err
			}
			defer dev.Close()
			if err := fs.Check(); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the identity header",
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, dev, err := open(0)
			if err != nil {
				return err
			}
			defer dev.Close()

			h, err := fs.Header()
			if err != nil {
				return err
			}

			fmt.Printf("version:      %d\n", h.Version)
			fmt.Printf("boardname:    %s\n", h.BoardName)
			fmt.Printf("boardversion: %s\n", h.BoardVersion)
			fmt.Printf("serial:       %s\n", h.Serial)
			fmt.Printf("usid:         %s\n", h.USID)
			fmt.Printf("cpuid:        %s\n", h.CPUID)
			fmt.Printf("mac:          %s\n", formatMAC(h.MAC))
			if h.Version == header.V1 {
				fmt.Printf("modules:      %v\n", h.Modules)
			}
			if h.Version == header.V3 {
				fmt.Printf("signature:    %s\n", h.SignatureAlgorithm)
				if n := h.SignatureAlgorithm.SignatureSize(); n > 0 {
					fmt.Printf("sig bytes:    %s\n", hex.EncodeToString(h.Signature[:n]))
				}
				fmt.Printf("timestamp:    %d\n", h.Timestamp)
			}
			fmt.Printf("crc32:        %#08x\n", h.Checksum)
			return nil
		},
	}
}

func setCmd() *cobra.Command {
	var (
		boardname    string
		boardversion string
		serial       string
		usid         string
		cpuid        string
		mac          string
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update identity fields in the header",
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, dev, err := open(0)
			if err != nil {
				return err
			}
			defer dev.Close()

			h, err := fs.Header()
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("boardname") {
				h.BoardName = boardname
			}
			if cmd.Flags().Changed("boardversion") {
				h.BoardVersion = boardversion
			}
			if cmd.Flags().Changed("serial") {
				h.Serial = serial
			}
			if cmd.Flags().Changed("usid") {
				h.USID = usid
			}
			if cmd.Flags().Changed("cpuid") {
				h.CPUID = cpuid
			}
			if cmd.Flags().Changed("mac") {
				parsed, err := parseMAC(mac)
				if err != nil {
					return err
				}
				h.MAC = parsed
			}
			return fs.SetHeader(h)
		},
	}
	cmd.Flags().StringVar(&boardname, "boardname", "", "board name")
	cmd.Flags().StringVar(&boardversion, "boardversion", "", "board version")
	cmd.Flags().StringVar(&serial, "serial", "", "device serial number")
	cmd.Flags().StringVar(&usid, "usid", "", "CPU eFuse USID")
	cmd.Flags().StringVar(&cpuid, "cpuid", "", "CPU ID")
	cmd.Flags().StringVar(&mac, "mac", "", "MAC address (AA:BB:CC:DD:EE:FF)")
	return cmd
}

func lsCmd() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List files in chain order",
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, dev, err := open(0)
			if err != nil {
				return err
			}
			defer dev.Close()

			names, err := fs.List(0)
			if err != nil {
				return err
			}
			for _, name := range names {
				if !long {
					fmt.Println(name)
					continue
				}
				info, err := fs.Find(name)
				if err != nil {
					return err
				}
				fmt.Printf("%-15s %5d bytes  crc %#08x  at %d\n", info.Name, info.Size, info.Checksum, info.Offset)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&long, "long", "l", false, "show size, checksum and offset")
	return cmd
}

func addCmd() *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "add NAME FILE",
		Short: "Store FILE in the image under NAME",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}

			fs, dev, err := open(0)
			if err != nil {
				return err
			}
			defer dev.Close()

			if overwrite {
				if _, err := fs.Find(args[0]); err == nil {
					_, err = fs.Write(args[0], data)
					return err
				}
			}
			_, err = fs.Add(args[0], data)
			return err
		},
	}
	cmd.Flags().BoolVarP(&overwrite, "force", "f", false, "overwrite if the file already exists")
	return cmd
}

func catCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat NAME",
		Short: "Write a file's payload to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, dev, err := open(0)
			if err != nil {
				return err
			}
			defer dev.Close()

			info, err := fs.Find(args[0])
			if err != nil {
				return err
			}
			buf := make([]byte, info.Size)
			n, err := fs.Read(args[0], buf)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(buf[:n])
			return err
		},
	}
}

func rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm NAME",
		Short: "Delete a file and compact the chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, dev, err := open(0)
			if err != nil {
				return err
			}
			defer dev.Close()
			return fs.Delete(args[0])
		},
	}
}

// parseMAC accepts AA:BB:CC:DD:EE:FF, AA-BB-CC-DD-EE-FF or AABBCCDDEEFF.
func parseMAC(s string) ([header.MACLength]byte, error) {
	var mac [header.MACLength]byte
	cleaned := strings.NewReplacer(":", "", "-", "").Replace(s)
	raw, err := hex.DecodeString(cleaned)
	if err != nil || len(raw) != header.MACLength {
		return mac, fmt.Errorf("invalid MAC address %q", s)
	}
	copy(mac[:], raw)
	return mac, nil
}

func formatMAC(mac [header.MACLength]byte) string {
	parts := make([]string, len(mac))
	for i, b := range mac {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}
