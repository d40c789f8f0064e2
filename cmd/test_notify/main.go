package main

import (
	"flag"
	"log"
	"strings"

	"github.com/joho/godotenv"

	"tutorlink_app_echo/internal/services"
)

func main() {
	phone := flag.String("phone", "", "Phone number (e.g. 8801712345678)")
	msg := flag.String("msg", "Test message from WahaService", "Message body")
	flag.Parse()

	if *phone == "" {
		log.Fatal("Please provide a phone number using -phone flag")
	}

	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found")
	}

	service := services.NewWahaService()

	chatId := *phone
	if !strings.HasSuffix(chatId, "@c.us") {
		chatId += "@c.us"
	}

	log.Printf("Sending message to %s: %s", chatId, *msg)

	err := service.SendMessage(chatId, *msg)
	if err != nil {
		log.Fatalf("Failed to send message: %v", err)
	}

	log.Println("Message sent successfully!")
}
