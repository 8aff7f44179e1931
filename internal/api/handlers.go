package api

import (
	"context"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"mdl/backend"
)

const AppVersion = "1.0.0"

// Health check
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": AppVersion,
	})
}

func (s *Server) handleGetVersion(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"version": AppVersion,
		"engine":  backend.EngineVersion(context.Background()),
	})
}

// ============== Queue Handlers ==============

type addRequest struct {
	URL     string                  `json:"url"`
	Mode    backend.Mode            `json:"mode"`
	Options backend.DownloadOptions `json:"options"`
}

func (s *Server) handleGetQueue(c *fiber.Ctx) error {
	return c.JSON(s.queue.GetAll())
}

func (s *Server) handleAddToQueue(c *fiber.Ctx) error {
	var req addRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}

	url := strings.TrimSpace(req.URL)
	if url == "" {
		return c.Status(400).JSON(fiber.Map{"error": "URL is required"})
	}
	if req.Mode == "" {
		req.Mode = backend.ModeVideo
	}
	if req.Mode != backend.ModeVideo && req.Mode != backend.ModeAudio {
		return c.Status(400).JSON(fiber.Map{"error": "Mode must be video or audio"})
	}

	index := s.queue.Add(url, req.Mode, req.Options)
	return c.JSON(fiber.Map{"index": index})
}

func (s *Server) handleRemoveFromQueue(c *fiber.Ctx) error {
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid index"})
	}
	if !s.queue.Remove(index) {
		return c.Status(404).JSON(fiber.Map{"error": "Item not removable"})
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) handleGetQueueStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"total":   len(s.queue.GetAll()),
		"pending": s.queue.CountPending(),
		"active":  s.controller.Active(),
	})
}

func (s *Server) handleStartQueue(c *fiber.Ctx) error {
	if s.queue.IsEmpty() {
		return c.Status(400).JSON(fiber.Map{"error": "Queue is empty"})
	}
	if !s.controller.Start(context.Background()) {
		return c.Status(409).JSON(fiber.Map{"error": "Queue is already running"})
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) handleCancelQueue(c *fiber.Ctx) error {
	all := c.QueryBool("all")
	s.controller.Cancel(all)
	return c.JSON(fiber.Map{"success": true, "all": all})
}

func (s *Server) handleClearFinished(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"cleared": s.queue.ClearFinished()})
}

func (s *Server) handleClearAll(c *fiber.Ctx) error {
	// Abort the in-flight item first so the wipe does not leave an
	// orphaned transfer running.
	if s.controller.Active() {
		s.controller.Cancel(true)
	}
	return c.JSON(fiber.Map{"cleared": s.queue.ClearAll()})
}

// ============== Metadata / Direct Download Handlers ==============

func (s *Server) handleGetInfo(c *fiber.Ctx) error {
	var body struct {
		URL string `json:"url"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}
	url := strings.TrimSpace(body.URL)
	if url == "" {
		return c.Status(400).JSON(fiber.Map{"error": "URL is required"})
	}

	outcome := <-backend.NewMetadataTask(backend.NewEngine(), url).Start(c.Context())
	if outcome.Err != nil {
		return c.Status(502).JSON(fiber.Map{"error": outcome.Err.Error()})
	}
	return c.JSON(outcome.Result)
}

func (s *Server) handleDownloadSingle(c *fiber.Ctx) error {
	var req addRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}
	url := strings.TrimSpace(req.URL)
	if url == "" {
		return c.Status(400).JSON(fiber.Map{"error": "URL is required"})
	}
	if req.Mode == "" {
		req.Mode = backend.ModeVideo
	}

	message, err := s.controller.DownloadSingle(context.Background(), url, req.Mode, req.Options)
	if err != nil {
		return c.Status(502).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"success": true, "message": message})
}

// ============== Config Handlers ==============

func (s *Server) handleGetConfig(c *fiber.Ctx) error {
	config, err := backend.LoadConfig()
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(config)
}

func (s *Server) handleSaveConfig(c *fiber.Ctx) error {
	var config backend.Config
	if err := c.BodyParser(&config); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := backend.SaveConfig(&config); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	// Update server config in place so the running controller sees it
	*s.config = config

	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) handleGetDefaultOutput(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"path": backend.GetDefaultOutputDirectory()})
}

// ============== History Handlers ==============

func (s *Server) handleGetHistory(c *fiber.Ctx) error {
	return c.JSON(s.history.Entries())
}

func (s *Server) handleSearchHistory(c *fiber.Ctx) error {
	return c.JSON(s.history.Search(c.Query("q")))
}

func (s *Server) handleDeleteHistoryEntry(c *fiber.Ctx) error {
	deleted, err := s.history.Delete(c.Params("id"))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	if !deleted {
		return c.Status(404).JSON(fiber.Map{"error": "History entry not found"})
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) handleClearHistory(c *fiber.Ctx) error {
	if err := s.history.Clear(); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) handleRequeueFromHistory(c *fiber.Ctx) error {
	id := c.Params("id")

	var entry *backend.HistoryEntry
	for _, e := range s.history.Entries() {
		if e.ID == id {
			entry = &e
			break
		}
	}
	if entry == nil {
		return c.Status(404).JSON(fiber.Map{"error": "History entry not found"})
	}

	index := s.queue.Add(entry.URL, entry.Mode, backend.DownloadOptions{})
	return c.JSON(fiber.Map{"index": index})
}
