package usecase

import (
	"errors"
	"fmt"
	"io"
	"time"

	"livescribe/internal/domain"
	"livescribe/internal/ports"
)

func pumpAudioChunks(
	stream ports.AudioStream,
	speech ports.SpeechSession,
	chunkSize int,
	report func(code domain.ErrorCode, detail string),
	done chan struct{},
) {
	defer close(done)

	if chunkSize < 256 {
		chunkSize = 4096
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			if sendErr := speech.SendAudio(buf[:n]); sendErr != nil {
				report(domain.ErrorCodeAudioStream, fmt.Sprintf("failed to stream audio: %v", sendErr))
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				report(domain.ErrorCodeAudioStream, fmt.Sprintf("audio capture error: %v", err))
			}
			return
		}
	}
}

func waitForSpeech(session ports.SpeechSession, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		_ = session.Close()
		return <-done
	}
}
