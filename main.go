package main

import (
	"flag"
	"log"

	"github.com/ConserveLee/snapbuy/app/purchase"
	"github.com/ConserveLee/snapbuy/app/tools"
	"github.com/ConserveLee/snapbuy/internal/config"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	myApp := app.New()
	myWindow := myApp.NewWindow("SnapBuy")
	myWindow.Resize(fyne.NewSize(500, 600))

	tabs := container.NewAppTabs(
		container.NewTabItem("Purchase", purchase.NewPurchasePanel(cfg, *configPath)),
		container.NewTabItem("Templates", tools.NewToolsPanel(myWindow, cfg)),
	)
	tabs.SetTabLocation(container.TabLocationTop)

	myWindow.SetContent(tabs)
	myWindow.ShowAndRun()
}
