package cmd

import (
	"fmt"

	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lunemec/spicord/pkg/services"
)

// linksCmd is top level command for the account link database.
var linksCmd = &cobra.Command{
	Use:   "links",
	Short: "Account link database functions",
}

// listLinksCmd prints the linked accounts.
var listLinksCmd = &cobra.Command{
	Use:   "list",
	Short: "Print linked accounts",
	Run:   listLinks,
}

// pendingLinksCmd prints the pending link requests.
var pendingLinksCmd = &cobra.Command{
	Use:   "pending",
	Short: "Print pending link requests",
	Run:   pendingLinks,
}

var linksFile string

func init() {
	rootCmd.AddCommand(linksCmd)
	linksCmd.AddCommand(listLinksCmd)
	linksCmd.AddCommand(pendingLinksCmd)

	linksCmd.PersistentFlags().StringVar(&linksFile, "file", "links.db", "path to bbolt links database")
}

func openLinks() services.BoltLinkingService {
	linking, err := services.NewBoltLinkingService(zap.NewNop(), linksFile)
	if err != nil {
		panic(fmt.Sprintf("error inicializing links file: %+v", err))
	}
	return linking
}

func listLinks(cmd *cobra.Command, args []string) {
	linking := openLinks()
	defer func() {
		err := linking.Close()
		if err != nil {
			fmt.Printf("ERROR closing DB: %+v\n", err)
		}
	}()

	links, err := linking.Links()
	if err != nil {
		panic(err)
	}
	for _, link := range links {
		pp.Println(link)
	}
	fmt.Printf("%d linked accounts.\n", len(links))
}

func pendingLinks(cmd *cobra.Command, args []string) {
	linking := openLinks()
	defer func() {
		err := linking.Close()
		if err != nil {
			fmt.Printf("ERROR closing DB: %+v\n", err)
		}
	}()

	pending, err := linking.Pending()
	if err != nil {
		panic(err)
	}
	for _, link := range pending {
		pp.Println(link)
	}
	fmt.Printf("%d pending link requests.\n", len(pending))
}
