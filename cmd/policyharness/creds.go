package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/msykam-r7/policy-content/credentials"
)

var credsCmd = &cobra.Command{
	Use:   "creds",
	Short: "Credential-store utilities",
}

var credsGenerateKeyCmd = &cobra.Command{
	Use:   "generate-key",
	Short: "Generate a key for the encrypted credential file backend",
	RunE: func(_ *cobra.Command, _ []string) error {
		key, err := credentials.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Println(key)
		return nil
	},
}

var credsEncryptKey string

var credsEncryptCmd = &cobra.Command{
	Use:   "encrypt-file <in.json> <out.enc>",
	Short: "Encrypt a plain JSON credential file",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		if err := credentials.EncryptFile(args[0], args[1], credsEncryptKey); err != nil {
			return err
		}
		fmt.Printf("encrypted %s -> %s\n", args[0], args[1])
		return nil
	},
}

var (
	resolveBackend string
	resolveQuery   credentials.Query
)

var credsResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve a credential bundle (password is not printed)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		provider, err := credentials.NewProvider(resolveBackend)
		if err != nil {
			return err
		}
		cred, err := provider.Lookup(cmd.Context(), resolveQuery)
		if err != nil {
			return err
		}
		fmt.Printf("%s -> %s@%s\n", resolveQuery, cred.Username, cred.IP)
		return nil
	},
}

func init() {
	credsEncryptCmd.Flags().StringVar(&credsEncryptKey, "key", "", "Base64 AES-256 key")
	_ = credsEncryptCmd.MarkFlagRequired("key")

	credsResolveCmd.Flags().StringVar(&resolveBackend, "backend", "", "Credential backend (defaults to CRED_BACKEND)")
	credsResolveCmd.Flags().StringVar(&resolveQuery.Benchmark, "benchmark", "", "Benchmark (CIS, DISA)")
	credsResolveCmd.Flags().StringVar(&resolveQuery.OS, "os", "", "Operating system")
	credsResolveCmd.Flags().StringVar(&resolveQuery.Version, "version", "", "OS version")
	credsResolveCmd.Flags().StringVar(&resolveQuery.Kind, "kind", credentials.KindCompliance, "Credential kind")
	credsResolveCmd.Flags().StringVar(&resolveQuery.Service, "service", credentials.ServiceServer, "Service kind")
	_ = credsResolveCmd.MarkFlagRequired("benchmark")
	_ = credsResolveCmd.MarkFlagRequired("os")
	_ = credsResolveCmd.MarkFlagRequired("version")

	credsCmd.AddCommand(credsGenerateKeyCmd, credsEncryptCmd, credsResolveCmd)
	rootCmd.AddCommand(credsCmd)
}
